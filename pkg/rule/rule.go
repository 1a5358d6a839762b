package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/google/cel-go/cel"
	"github.com/google/shlex"

	"github.com/macropower/simplerules/pkg/expr"
	"github.com/macropower/simplerules/pkg/flag"
	"github.com/macropower/simplerules/pkg/proc"
)

// DefaultRegexTimeout bounds a single regular expression match.
const DefaultRegexTimeout = 100 * time.Millisecond

var (
	ErrBlankLine          = errors.New("blank or comment line")
	ErrInvalidSyntax      = errors.New("can't parse line")
	ErrNotEnoughArguments = errors.New("not enough arguments")
	ErrEmptyFlagName      = errors.New("empty flag name")
	ErrInvalidRegexp      = errors.New("error compiling regular expression")
	ErrInvalidExpression  = errors.New("error compiling expression")
	ErrMissingEquals      = errors.New("invalid argument: '=' missing")
	ErrInvalidOption      = errors.New("invalid option value")
)

// Rule matches processes and carries the flag template to apply to them.
type Rule struct {
	re       *regexp2.Regexp
	program  cel.Program
	template flag.Template

	// Pattern is the matcher text without its kind prefix.
	Pattern string
	// Unknown lists option keys that were ignored while parsing.
	Unknown []string
	Kind    Kind
}

type options struct {
	env          *expr.Environment
	regexTimeout time.Duration
}

// Option configures rule compilation.
type Option func(*options)

// WithRegexTimeout sets the per-match timeout for regular expressions.
// A timed out match counts as a non-match. Zero disables the timeout.
func WithRegexTimeout(d time.Duration) Option {
	return func(o *options) {
		o.regexTimeout = d
	}
}

// WithEnvironment sets the CEL environment used for cel: rules.
func WithEnvironment(env *expr.Environment) Option {
	return func(o *options) {
		o.env = env
	}
}

func newOptions(opts []Option) *options {
	o := &options{regexTimeout: DefaultRegexTimeout}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// IsBlank reports whether line carries no rule.
func IsBlank(line string) bool {
	trimmed := strings.TrimSpace(line)

	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

// Parse parses a single rule line. Blank and comment lines return
// [ErrBlankLine].
func Parse(line string, opts ...Option) (*Rule, error) {
	if IsBlank(line) {
		return nil, ErrBlankLine
	}

	// Shell operators are literal text and '#' starts a comment only at
	// the beginning of a word.
	words, err := shlex.Split(keepQuotedBackslashes(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSyntax, err)
	}
	if len(words) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNotEnoughArguments, strings.TrimSpace(line))
	}

	kind, pattern := splitMatcher(words[0])

	tmpl := flag.Template{Name: words[1]}

	var unknown []string

	for _, word := range words[2:] {
		key, value, ok := strings.Cut(word, "=")
		if !ok {
			return nil, fmt.Errorf("%w in %q", ErrMissingEquals, word)
		}

		known, err := applyOption(&tmpl, key, value)
		if err != nil {
			return nil, err
		}
		if !known {
			unknown = append(unknown, key)
		}
	}

	r, err := New(kind, pattern, tmpl, opts...)
	if err != nil {
		return nil, err
	}

	r.Unknown = unknown

	return r, nil
}

// keepQuotedBackslashes doubles backslashes inside double quotes unless
// they escape one of $ ` " \ or a newline, which are the only escapes glib
// honors there. Regexes like "\d+" keep their backslash.
func keepQuotedBackslashes(line string) string {
	if !strings.Contains(line, `\`) {
		return line
	}

	var (
		b      strings.Builder
		single bool
		double bool
	)

	b.Grow(len(line) + 8)

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case single:
			if c == '\'' {
				single = false
			}

		case c == '\\' && i+1 < len(line):
			next := line[i+1]
			if double && !strings.ContainsRune("$`\"\\\n", rune(next)) {
				b.WriteString(`\\`)

				continue
			}

			// Copy the escaped byte as is.
			b.WriteByte(c)
			i++
			c = next

		case c == '"':
			double = !double

		case c == '\'' && !double:
			single = true
		}

		b.WriteByte(c)
	}

	return b.String()
}

// MustParse parses a rule line and panics if there's an error.
func MustParse(line string, opts ...Option) *Rule {
	r, err := Parse(line, opts...)
	if err != nil {
		panic(err)
	}

	return r
}

// New creates a rule of the given kind and compiles its pattern. An empty
// literal or regex pattern matches every process.
func New(kind Kind, pattern string, tmpl flag.Template, opts ...Option) (*Rule, error) {
	if tmpl.Name == "" {
		return nil, ErrEmptyFlagName
	}

	o := newOptions(opts)
	r := &Rule{
		Kind:     kind,
		Pattern:  pattern,
		template: tmpl,
	}

	switch {
	case kind.IsRegex():
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("%w in %s: %w", ErrInvalidRegexp, kind.prefix()+pattern, err)
		}

		if o.regexTimeout > 0 {
			re.MatchTimeout = o.regexTimeout
		}

		r.re = re

	case kind == KindCEL:
		env := o.env
		if env == nil {
			var err error

			env, err = expr.NewEnvironment()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
			}
		}

		program, err := env.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidExpression, pattern, err)
		}

		r.program = program
	}

	return r, nil
}

// Template returns a copy of the rule's flag template.
func (r *Rule) Template() flag.Template {
	return r.template
}

// Applies reports whether the rule matches p. Attributes the rule needs are
// loaded on demand; a process lacking them never matches, except for CEL
// rules, which see unavailable attributes as empty values.
func (r *Rule) Applies(p *proc.Process) bool {
	if r.Kind == KindCEL {
		return r.evalCEL(p)
	}

	if !p.Ensure(r.Kind.Attr()) {
		return false
	}

	switch r.Kind {
	case KindExe:
		return strings.HasPrefix(p.Exe(), r.Pattern)
	case KindBasename:
		return strings.HasPrefix(p.Cmdfile(), r.Pattern)
	case KindCmdline:
		return strings.HasPrefix(p.CmdlineMatch(), r.Pattern)
	case KindRegexExe:
		return r.search(p.Exe())
	case KindRegexCmdline:
		return r.search(p.CmdlineMatch())
	case KindRegexBasename:
		return r.search(p.Cmdfile())
	}

	return false
}

func (r *Rule) search(s string) bool {
	ok, err := r.re.MatchString(s)

	return err == nil && ok
}

func (r *Rule) evalCEL(p *proc.Process) bool {
	p.Ensure(proc.AttrExe)
	p.Ensure(proc.AttrCmdline)

	ok, err := expr.EvalBool(r.program, expr.Vars{
		PID:     p.PID(),
		Exe:     p.Exe(),
		Cmdline: p.CmdlineMatch(),
		Cmdfile: p.Cmdfile(),
		Args:    p.Cmdline(),
	})

	return err == nil && ok
}

// Matcher returns the matcher word as it would be written in a rule file.
func (r *Rule) Matcher() string {
	return r.Kind.prefix() + r.Pattern
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s: %s", r.Matcher(), r.template.Name)
}
