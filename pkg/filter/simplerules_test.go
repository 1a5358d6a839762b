package filter_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/flag"
	"github.com/macropower/simplerules/pkg/proc"
)

type registry struct {
	filters []filter.Filter
}

func (r *registry) Register(f filter.Filter) {
	r.filters = append(r.filters, f)
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()

	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func flagNames(flags []*flag.Flag) []string {
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, f.Name)
	}

	return names
}

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestRules(t *testing.T, files map[string]string, opts ...filter.SimpleRulesOpt) *filter.SimpleRules {
	t.Helper()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, files)

	opts = append([]filter.SimpleRulesOpt{
		filter.WithFs(fs),
		filter.WithClock(func() time.Time { return testNow }),
	}, opts...)

	return filter.NewSimpleRules(opts...)
}

func TestSimpleRules_Init(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		files     map[string]string
		opts      []filter.SimpleRulesOpt
		wantReg   bool
		wantRules int
	}{
		"directory and file": {
			files: map[string]string{
				"/etc/ulatencyd/simple.d/desktop.conf": "Xorg user.ui\n",
				"/etc/ulatencyd/simple.conf":           "sshd daemon.ssh\n",
			},
			wantReg:   true,
			wantRules: 2,
		},
		"no rules": {
			files:   map[string]string{"/etc/ulatencyd/simple.conf": "# nothing here\n"},
			wantReg: false,
		},
		"nothing on disk": {
			wantReg: false,
		},
		"all disabled": {
			files: map[string]string{"/etc/ulatencyd/simple.d/desktop.conf": "Xorg user.ui\n"},
			opts:  []filter.SimpleRulesOpt{filter.WithDisabledRules("DESKTOP")},
		},
		"custom config dir": {
			files: map[string]string{"/srv/rules/simple.d/a.conf": "a user.a\n"},
			opts: []filter.SimpleRulesOpt{
				filter.WithConfigDir("/srv/rules"),
				filter.WithRulesFile(""),
			},
			wantReg:   true,
			wantRules: 1,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestRules(t, tc.files, tc.opts...)
			reg := &registry{}

			got := s.Init(t.Context(), reg)
			assert.Equal(t, tc.wantReg, got)
			assert.Equal(t, tc.wantRules, s.Rules().Len())

			if tc.wantReg {
				require.Len(t, reg.filters, 1)
				assert.Equal(t, filter.SimpleRulesName, reg.filters[0].Name())
			} else {
				assert.Empty(t, reg.filters)
			}
		})
	}
}

func TestSimpleRules_Run(t *testing.T) {
	t.Parallel()

	s := newTestRules(t, map[string]string{
		"/etc/ulatencyd/simple.d/1-browser.conf": "firefox user.browser reason=web timeout=60 priority=2\n",
		"/etc/ulatencyd/simple.d/2-renderer.conf": "re_cmd:'--type=renderer' user.renderer value=5 inherit=1\n" +
			"chrome user.browser\n",
		"/etc/ulatencyd/simple.conf": "/usr/lib/firefox user.firefox\n",
	})
	require.True(t, s.Init(t.Context(), &registry{}))

	p := proc.NewStatic(42, "/usr/lib/firefox/firefox",
		[]string{"/usr/lib/firefox/firefox", "-contentproc", "--type=renderer"})

	res := s.Run(t.Context(), p)
	assert.Equal(t, filter.ResultStop, res)

	flags := p.Flags()
	assert.Equal(t, []string{"user.browser", "user.renderer", "user.firefox"}, flagNames(flags))

	require.Len(t, flags, 3)
	assert.Equal(t, &flag.Flag{
		Name:     "user.browser",
		Source:   filter.SimpleRulesName,
		Reason:   "web",
		Priority: 2,
		Expires:  testNow.Add(time.Minute),
	}, flags[0])
	assert.Equal(t, &flag.Flag{
		Name:    "user.renderer",
		Source:  filter.SimpleRulesName,
		Value:   5,
		Inherit: true,
	}, flags[1])

	kthread := proc.NewStatic(2, "", nil)
	assert.Equal(t, filter.ResultStop, s.Run(t.Context(), kthread))
	assert.Empty(t, kthread.Flags())
}

func TestSimpleRules_Match(t *testing.T) {
	t.Parallel()

	s := newTestRules(t, map[string]string{
		"/etc/ulatencyd/simple.conf": "bash user.shell\nzsh user.shell\nre_base:sh$ user.anyshell\n",
	})
	s.Init(t.Context(), &registry{})

	p := proc.NewStatic(7, "/usr/bin/bash", []string{"bash", "-l"})
	matched := s.Match(p)

	require.Len(t, matched, 2)
	assert.Equal(t, "bash: user.shell", matched[0].String())
	assert.Equal(t, "re_base:sh$: user.anyshell", matched[1].String())
	assert.Empty(t, p.Flags())
}

func TestSimpleRules_Reload(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/etc/ulatencyd/simple.conf": "bash user.shell\n"})

	s := filter.NewSimpleRules(filter.WithFs(fs))
	require.True(t, s.Init(t.Context(), &registry{}))
	assert.Equal(t, 1, s.Rules().Len())

	writeFiles(t, fs, map[string]string{"/etc/ulatencyd/simple.conf": "bash user.shell\nzsh user.shell\n"})

	set, err := s.Reload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 2, s.Rules().Len())

	writeFiles(t, fs, map[string]string{"/etc/ulatencyd/simple.conf": "broken\n"})

	set, err = s.Reload(t.Context())
	require.ErrorIs(t, err, filter.ErrNoRules)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, 2, s.Rules().Len(), "previous rules are kept")
}

func TestSimpleRules_Paths(t *testing.T) {
	t.Parallel()

	s := filter.NewSimpleRules()
	assert.Equal(t, "/etc/ulatencyd/simple.d", s.RulesDir())
	assert.Equal(t, "/etc/ulatencyd/simple.conf", s.RulesFile())

	s = filter.NewSimpleRules(
		filter.WithConfigDir("/cfg"),
		filter.WithRulesDir("/abs/rules.d"),
		filter.WithRulesFile("local.conf"),
	)
	assert.Equal(t, "/abs/rules.d", s.RulesDir())
	assert.Equal(t, "/cfg/local.conf", s.RulesFile())
}
