package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/simplerules/pkg/expr"
	"github.com/macropower/simplerules/pkg/log"
	"github.com/macropower/simplerules/pkg/metrics"
	"github.com/macropower/simplerules/pkg/proc"
	"github.com/macropower/simplerules/pkg/rule"
	"github.com/macropower/simplerules/pkg/ruleset"
)

const (
	// SimpleRulesName is the filter name, also used as the flag source.
	SimpleRulesName = "simplerules"

	// DefaultConfigDir holds the rule directory and rule file.
	DefaultConfigDir = "/etc/ulatencyd"
	// DefaultRulesDir is the rule directory name within the config dir.
	DefaultRulesDir = "simple.d"
	// DefaultRulesFile is the rule file name within the config dir.
	DefaultRulesFile = "simple.conf"
)

// ErrNoRules is returned by [SimpleRules.Reload] when loading produced no
// rules, in which case the previous rules are kept.
var ErrNoRules = errors.New("no rules loaded")

// SimpleRules attaches a flag to a process for every rule that matches it.
type SimpleRules struct {
	fs       afero.Fs
	tracer   trace.Tracer
	now      func() time.Time
	set      *ruleset.Set
	env      *expr.Environment
	dir      string
	rulesDir string
	file     string
	disabled []string
	timeout  time.Duration
	mu       sync.RWMutex
}

// SimpleRulesOpt configures [SimpleRules].
type SimpleRulesOpt func(*SimpleRules)

// WithFs sets the filesystem rules are read from.
func WithFs(fs afero.Fs) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.fs = fs
	}
}

// WithConfigDir sets the directory holding the rule directory and file.
func WithConfigDir(dir string) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.dir = dir
	}
}

// WithRulesDir sets the rule directory. Relative paths are resolved against
// the config dir. An empty name disables the directory.
func WithRulesDir(name string) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.rulesDir = name
	}
}

// WithRulesFile sets the rule file. Relative paths are resolved against the
// config dir. An empty name disables the file.
func WithRulesFile(name string) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.file = name
	}
}

// WithDisabledRules sets rule names to skip when reading the rule directory.
func WithDisabledRules(names ...string) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.disabled = names
	}
}

// WithRegexTimeout sets the per-match timeout of regular expression rules.
func WithRegexTimeout(d time.Duration) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.timeout = d
	}
}

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) SimpleRulesOpt {
	return func(s *SimpleRules) {
		s.now = now
	}
}

// NewSimpleRules creates a new [SimpleRules] filter. Rules are not loaded
// until [SimpleRules.Init] or [SimpleRules.Reload] is called.
func NewSimpleRules(opts ...SimpleRulesOpt) *SimpleRules {
	s := &SimpleRules{
		fs:       afero.NewOsFs(),
		tracer:   otel.Tracer("filter"),
		now:      time.Now,
		set:      &ruleset.Set{},
		env:      expr.MustNewEnvironment(),
		dir:      DefaultConfigDir,
		rulesDir: DefaultRulesDir,
		file:     DefaultRulesFile,
		timeout:  rule.DefaultRegexTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name implements [Filter].
func (s *SimpleRules) Name() string {
	return SimpleRulesName
}

// RulesDir returns the resolved rule directory, or an empty string.
func (s *SimpleRules) RulesDir() string {
	return s.resolve(s.rulesDir)
}

// RulesFile returns the resolved rule file, or an empty string.
func (s *SimpleRules) RulesFile() string {
	return s.resolve(s.file)
}

func (s *SimpleRules) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(s.dir, name)
}

// Init loads the rules and registers the filter with reg when at least one
// rule was loaded. It reports whether the filter was registered.
func (s *SimpleRules) Init(ctx context.Context, reg Registry) bool {
	set := s.Load(ctx)

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	metrics.RecordRulesLoaded(set.Len(), len(set.Issues))

	if set.Len() == 0 {
		log.WithContext(ctx).InfoContext(ctx, "no simple rules loaded, filter not registered")

		return false
	}

	reg.Register(s)

	log.WithContext(ctx).InfoContext(ctx, "registered filter",
		slog.String("filter", SimpleRulesName),
		slog.Int("rules", set.Len()),
	)

	return true
}

// Load reads the rules without installing them.
func (s *SimpleRules) Load(ctx context.Context) *ruleset.Set {
	l := ruleset.NewLoader(s.fs,
		ruleset.WithDisabled(s.disabled...),
		ruleset.WithRuleOptions(
			rule.WithRegexTimeout(s.timeout),
			rule.WithEnvironment(s.env),
		),
	)

	return l.Load(ctx, s.RulesDir(), s.RulesFile())
}

// Reload reads the rules again and swaps them in. When nothing could be
// loaded, the current rules stay in place and [ErrNoRules] is returned. The
// new set is returned in both cases.
func (s *SimpleRules) Reload(ctx context.Context) (*ruleset.Set, error) {
	ctx, span := s.tracer.Start(ctx, "reload")
	defer span.End()

	set := s.Load(ctx)

	if set.Len() == 0 {
		metrics.RecordReload(false)

		err := ErrNoRules
		if errs := set.Errors(); len(errs) > 0 {
			err = fmt.Errorf("%w: %w", ErrNoRules, errors.Join(errs...))
		}

		span.RecordError(err)

		return set, err
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	metrics.RecordReload(true)
	metrics.RecordRulesLoaded(set.Len(), len(set.Issues))

	log.WithContext(ctx).InfoContext(ctx, "reloaded simple rules",
		slog.Int("rules", set.Len()),
		slog.Int("issues", len(set.Issues)),
	)

	return set, nil
}

// Rules returns the currently installed rule set.
func (s *SimpleRules) Rules() *ruleset.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.set
}

// Run implements [Filter]. Every matching rule adds its flag; the process is
// then excluded from further runs.
func (s *SimpleRules) Run(ctx context.Context, p *proc.Process) Result {
	rules := s.Rules().Rules
	now := s.now()

	for _, r := range rules {
		if !r.Applies(p) {
			continue
		}

		tmpl := r.Template()
		p.AddFlag(tmpl.Instantiate(SimpleRulesName, now))
		metrics.RecordFlagApplied(tmpl.Name)

		log.WithProcess(ctx, p.PID(), p.Cmdfile()).DebugContext(ctx, "add flag",
			slog.String("flag", tmpl.Name),
			slog.String("rule", r.Matcher()),
		)
	}

	return ResultStop
}

// Match returns the rules that apply to p, without attaching flags.
func (s *SimpleRules) Match(p *proc.Process) []*rule.Rule {
	var matched []*rule.Rule

	for _, r := range s.Rules().Rules {
		if r.Applies(p) {
			matched = append(matched, r)
		}
	}

	return matched
}
