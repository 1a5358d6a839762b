package yaml

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/printer"
	"github.com/goccy/go-yaml/token"
)

// NewPathBuilder returns a builder for [yaml.Path] values.
func NewPathBuilder() *yaml.PathBuilder {
	return &yaml.PathBuilder{}
}

// ErrorWrapper applies a fixed set of [ErrorOpt]s to every [*Error] it wraps.
type ErrorWrapper struct {
	Opts []ErrorOpt
}

func NewErrorWrapper(opts ...ErrorOpt) *ErrorWrapper {
	return &ErrorWrapper{
		Opts: opts,
	}
}

// Wrap wraps an error with additional context for [Error]s.
// If the error isn't an [Error], it returns the original error unmodified.
func (ew *ErrorWrapper) Wrap(err error, opts ...ErrorOpt) error {
	if err == nil {
		return nil
	}

	var yamlErr *Error
	if errors.As(err, &yamlErr) {
		for _, opt := range ew.Opts {
			opt(yamlErr)
		}

		for _, opt := range opts {
			opt(yamlErr)
		}

		return yamlErr
	}

	return err
}

// Error is a YAML error located either by [*token.Token] or by [*yaml.Path].
// When the source is known, the message includes the surrounding lines.
type Error struct {
	Err     error
	Path    *yaml.Path
	Token   *token.Token
	Source  []byte
	Colored bool
}

func NewError(err error, opts ...ErrorOpt) *Error {
	e := &Error{Err: err}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type ErrorOpt func(e *Error)

func WithPath(path *yaml.Path) ErrorOpt {
	return func(e *Error) {
		e.Path = path
	}
}

func WithToken(tk *token.Token) ErrorOpt {
	return func(e *Error) {
		e.Token = tk
	}
}

func WithSource(source []byte) ErrorOpt {
	return func(e *Error) {
		e.Source = source
	}
}

// WithColor enables ANSI colors in the annotated source.
func WithColor(colored bool) ErrorOpt {
	return func(e *Error) {
		e.Colored = colored
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return ""
	}
	if e.Path == nil && e.Token == nil {
		return e.Err.Error()
	}
	if e.Token == nil && e.Source == nil {
		return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
	}

	msg, err := e.annotateSource()
	if err != nil {
		slog.Debug("annotate config with error",
			slog.String("path", e.Path.String()),
			slog.Any("err", err),
		)

		return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
	}

	return msg
}

func (e *Error) annotateSource() (string, error) {
	tk := e.Token
	if tk == nil {
		var err error

		tk, err = getTokenFromPath(e.Source, e.Path)
		if err != nil {
			return "", fmt.Errorf("get token from path: %w", err)
		}
	}

	header := fmt.Sprintf("[%d:%d] %v:", tk.Position.Line, tk.Position.Column, e.Err)

	var pp printer.Printer

	src := pp.PrintErrorToken(tk, e.Colored)
	src = lipgloss.NewStyle().PaddingTop(1).Render(src)

	return header + "\n" + src, nil
}

func getTokenFromPath(source []byte, path *yaml.Path) (*token.Token, error) {
	file, err := parser.ParseBytes(source, 0)
	if err != nil {
		return nil, fmt.Errorf("parse source bytes into ast.File: %w", err)
	}

	node, err := path.FilterFile(file)
	if err != nil {
		return nil, fmt.Errorf("filter from ast.File by YAMLPath: %w", err)
	}

	// FilterFile returns the value node; point at the key when there is one.
	keyToken := findKeyToken(file, path)
	if keyToken != nil {
		return keyToken, nil
	}

	return node.GetToken(), nil
}

func findKeyToken(file *ast.File, path *yaml.Path) *token.Token {
	pathStr := path.String()

	lastDot := strings.LastIndex(pathStr, ".")
	lastBracket := strings.LastIndex(pathStr, "[")

	if lastDot == -1 || lastDot <= lastBracket {
		return nil
	}

	parentPath, err := yaml.PathString(pathStr[:lastDot])
	if err != nil {
		return nil
	}

	parentNode, err := parentPath.FilterFile(file)
	if err != nil {
		return nil
	}

	mapping, ok := parentNode.(*ast.MappingNode)
	if !ok {
		return nil
	}

	lastSegment := pathStr[lastDot+1:]
	for _, val := range mapping.Values {
		if val.Key.String() == lastSegment {
			return val.Key.GetToken()
		}
	}

	return nil
}
