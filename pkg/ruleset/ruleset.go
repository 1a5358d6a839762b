// Package ruleset loads simple rule files into an ordered list of rules.
//
// Rules are read from a directory of *.conf files, taken in version-sort
// order, followed by a single rule file. Problems with individual lines are
// recorded as issues and never stop the remaining rules from loading.
package ruleset

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/simplerules/pkg/log"
	"github.com/macropower/simplerules/pkg/rule"
)

// RuleFileExt is the extension of files loaded from a rules directory.
const RuleFileExt = ".conf"

// ErrUnknownOption is recorded, as a warning, for ignored option keys.
var ErrUnknownOption = errors.New("unknown option")

// LineError describes a problem with one line of a rule file.
type LineError struct {
	Err     error
	Path    string
	Line    int
	Warning bool
}

func (e *LineError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Set is the result of loading rules.
type Set struct {
	// Rules in load order.
	Rules []*rule.Rule
	// Files that were read.
	Files []string
	// Skipped lists disabled rule names and non-regular entries.
	Skipped []string
	// Issues holds line errors, warnings, and unreadable locations.
	Issues []error
}

// Errors returns the issues that are not warnings.
func (s *Set) Errors() []error {
	var errs []error

	for _, issue := range s.Issues {
		var le *LineError
		if errors.As(issue, &le) && le.Warning {
			continue
		}

		errs = append(errs, issue)
	}

	return errs
}

// Len returns the number of loaded rules.
func (s *Set) Len() int {
	return len(s.Rules)
}

// Loader reads rule files from a filesystem.
type Loader struct {
	fs       afero.Fs
	tracer   trace.Tracer
	disabled []string
	ruleOpts []rule.Option
}

// LoaderOpt configures a [Loader].
type LoaderOpt func(*Loader)

// WithDisabled sets rule names (file names without .conf) to skip. Names
// are compared case-insensitively.
func WithDisabled(names ...string) LoaderOpt {
	return func(l *Loader) {
		l.disabled = append(l.disabled, names...)
	}
}

// WithRuleOptions sets options passed to [rule.Parse].
func WithRuleOptions(opts ...rule.Option) LoaderOpt {
	return func(l *Loader) {
		l.ruleOpts = append(l.ruleOpts, opts...)
	}
}

// NewLoader creates a new [Loader] reading from fs.
func NewLoader(fs afero.Fs, opts ...LoaderOpt) *Loader {
	l := &Loader{
		fs:     fs,
		tracer: otel.Tracer("ruleset"),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads all rules from dir and then from file. Either may be empty to
// skip it. Missing locations are recorded as warnings.
func (l *Loader) Load(ctx context.Context, dir, file string) *Set {
	ctx, span := l.tracer.Start(ctx, "load", trace.WithAttributes(
		attribute.String("dir", dir),
		attribute.String("file", file),
	))
	defer span.End()

	set := &Set{}

	if dir != "" {
		err := l.loadDir(ctx, set, dir)
		if err != nil {
			log.WithContext(ctx).WarnContext(ctx, "can't load rules directory",
				slog.String("path", dir),
				slog.Any("err", err),
			)
			set.Issues = append(set.Issues, &LineError{Path: dir, Err: err, Warning: errors.Is(err, fs.ErrNotExist)})
		}
	}

	if file != "" {
		err := l.loadFile(ctx, set, file)
		if err != nil {
			set.Issues = append(set.Issues, &LineError{Path: file, Err: err, Warning: errors.Is(err, fs.ErrNotExist)})
		}
	}

	span.SetAttributes(
		attribute.Int("rules", len(set.Rules)),
		attribute.Int("issues", len(set.Issues)),
	)

	return set
}

// LoadDir reads every *.conf file in dir in version-sort order.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*Set, error) {
	set := &Set{}

	err := l.loadDir(ctx, set, dir)
	if err != nil {
		return nil, err
	}

	return set, nil
}

// LoadFile reads a single rule file. A file that can't be read, including
// a missing one, is an error. Lines that fail to parse are skipped; the
// returned error joins their [*LineError]s and is nil only when every line
// parsed.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*rule.Rule, error) {
	set := &Set{}

	err := l.loadFile(ctx, set, path)
	if err != nil {
		return nil, err
	}

	return set.Rules, errors.Join(set.Errors()...)
}

func (l *Loader) loadDir(ctx context.Context, set *Set, dir string) error {
	logger := log.WithContext(ctx)

	f, err := l.fs.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}

	names, err := f.Readdirnames(-1)
	_ = f.Close() //nolint:errcheck // Read-only.

	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	logger.InfoContext(ctx, "load simple rules directory", slog.String("path", dir))

	SortVersion(names)

	for _, name := range names {
		match, err := filepath.Match("*"+RuleFileExt, name)
		if err != nil || !match {
			continue
		}

		ruleName := strings.TrimSuffix(name, RuleFileExt)
		if l.isDisabled(ruleName) {
			logger.DebugContext(ctx, "skip rule", slog.String("name", name))
			set.Skipped = append(set.Skipped, name)

			continue
		}

		path := filepath.Join(dir, name)

		info, err := l.fs.Stat(path)
		if err != nil {
			logger.DebugContext(ctx, "skip rule", slog.String("name", name), slog.Any("err", err))
			set.Skipped = append(set.Skipped, name)

			continue
		}
		if !info.Mode().IsRegular() {
			set.Skipped = append(set.Skipped, name)

			continue
		}

		err = l.loadFile(ctx, set, path)
		if err != nil {
			set.Issues = append(set.Issues, &LineError{Path: path, Err: err, Warning: errors.Is(err, fs.ErrNotExist)})
		}
	}

	return nil
}

// loadFile appends the rules and line issues of path to set. It returns
// an error only when the file can't be read.
func (l *Loader) loadFile(ctx context.Context, set *Set, path string) error {
	logger := log.WithContext(ctx).With(slog.String("path", path))

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		logger.WarnContext(ctx, "can't load simple rule file", slog.Any("err", err))

		return fmt.Errorf("read rule file: %w", err)
	}

	logger.DebugContext(ctx, "load simple rule file")

	set.Files = append(set.Files, path)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), len(data)+1)

	lineno := 0
	for scanner.Scan() {
		lineno++

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if rule.IsBlank(line) {
			continue
		}

		r, err := rule.Parse(line, l.ruleOpts...)
		if err != nil {
			logger.WarnContext(ctx, "skip rule line",
				slog.Int("line", lineno),
				slog.Any("err", err),
			)
			set.Issues = append(set.Issues, &LineError{Path: path, Line: lineno, Err: err})

			continue
		}

		for _, key := range r.Unknown {
			logger.WarnContext(ctx, "ignore unknown option",
				slog.Int("line", lineno),
				slog.String("key", key),
			)
			set.Issues = append(set.Issues, &LineError{
				Path:    path,
				Line:    lineno,
				Err:     fmt.Errorf("%w %q", ErrUnknownOption, key),
				Warning: true,
			})
		}

		set.Rules = append(set.Rules, r)
	}

	if err := scanner.Err(); err != nil {
		set.Issues = append(set.Issues, &LineError{Path: path, Line: lineno, Err: err})
	}

	return nil
}

func (l *Loader) isDisabled(name string) bool {
	for _, d := range l.disabled {
		if strings.EqualFold(d, name) {
			return true
		}
	}

	return false
}
