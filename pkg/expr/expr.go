package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrNotBool is returned when an expression does not evaluate to a bool.
var ErrNotBool = errors.New("expression result is not a bool")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment] with the process variables and
// library functions declared.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	env, err := createEnvironment(opts...)
	if err != nil {
		return nil, err
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

func createEnvironment(opts ...cel.EnvOption) (*cel.Env, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append(opts,
		cel.Variable("pid", cel.IntType),
		cel.Variable("exe", cel.StringType),
		cel.Variable("cmdline", cel.StringType),
		cel.Variable("cmdfile", cel.StringType),
		cel.Variable("args", cel.ListType(cel.StringType)),
		cel.Lib(&lib{}),
	)

	celEnv, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return celEnv, nil
}

// Compile compiles a CEL expression and returns a program.
// The expression must have a bool output type.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: got %s", ErrNotBool, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// Vars is the activation passed to a compiled program.
type Vars struct {
	Exe     string
	Cmdline string
	Cmdfile string
	Args    []string
	PID     int
}

// Activation converts v into the variable map expected by CEL.
func (v Vars) Activation() map[string]any {
	args := v.Args
	if args == nil {
		args = []string{}
	}

	return map[string]any{
		"pid":     v.PID,
		"exe":     v.Exe,
		"cmdline": v.Cmdline,
		"cmdfile": v.Cmdfile,
		"args":    args,
	}
}

// EvalBool evaluates program with vars and returns its bool result.
func EvalBool(program cel.Program, vars Vars) (bool, error) {
	result, _, err := program.Eval(vars.Activation())
	if err != nil {
		return false, fmt.Errorf("evaluate: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, ErrNotBool
	}

	return b, nil
}
