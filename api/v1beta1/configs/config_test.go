package configs_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/api/v1beta1/configs"
	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/rule"
	"github.com/macropower/simplerules/pkg/yaml"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := configs.New()

	require.NotNil(t, cfg)
	assert.Equal(t, "simplerules.ulatencyd.org/v1beta1", cfg.GetAPIVersion())
	assert.Equal(t, "Configuration", cfg.GetKind())
	require.NotNil(t, cfg.SimpleRules)
	require.NotNil(t, cfg.Daemon)
	assert.Equal(t, filter.DefaultRulesDir, cfg.SimpleRules.RulesDir)
	assert.Equal(t, filter.DefaultRulesFile, cfg.SimpleRules.RulesFile)
	assert.Equal(t, rule.DefaultRegexTimeout, cfg.SimpleRules.RegexTimeout)
	assert.Equal(t, configs.DefaultProcRoot, cfg.Daemon.ProcRoot)
	assert.Equal(t, configs.DefaultInterval, cfg.Daemon.Interval)
}

//nolint:paralleltest // Sets environment variables.
func TestConfig_EnsureDefaults(t *testing.T) {
	t.Setenv("SIMPLERULES_CONFIG_DIR", "/srv/ulatencyd")

	cfg := &configs.Config{
		SimpleRules: &configs.SimpleRulesConfig{RulesDir: "rules.d"},
	}

	cfg.EnsureDefaults()

	require.NotNil(t, cfg.Daemon)
	assert.Equal(t, "/srv/ulatencyd", cfg.SimpleRules.ConfigDir)
	assert.Equal(t, "rules.d", cfg.SimpleRules.RulesDir)
	assert.Equal(t, filter.DefaultRulesFile, cfg.SimpleRules.RulesFile)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		cfg    *configs.Config
		errMsg string
	}{
		"defaults": {
			cfg: configs.New(),
		},
		"negative regex timeout": {
			cfg: &configs.Config{
				SimpleRules: &configs.SimpleRulesConfig{RegexTimeout: -time.Second},
			},
			errMsg: "simplerules.regexTimeout: negative duration",
		},
		"empty disabled rule": {
			cfg: &configs.Config{
				SimpleRules: &configs.SimpleRulesConfig{DisabledRules: []string{"ok", ""}},
			},
			errMsg: "simplerules.disabledRules[1]",
		},
		"disabled rule with slash": {
			cfg: &configs.Config{
				SimpleRules: &configs.SimpleRulesConfig{DisabledRules: []string{"a/b"}},
			},
			errMsg: `invalid rule name "a/b"`,
		},
		"negative interval": {
			cfg: &configs.Config{
				Daemon: &configs.DaemonConfig{Interval: -time.Minute},
			},
			errMsg: "daemon.interval",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, configs.ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestDefaultYAML(t *testing.T) {
	t.Parallel()

	var data any

	require.NoError(t, yaml.NewDecoder(bytes.NewReader(configs.DefaultYAML())).Decode(&data))
	require.NoError(t, configs.DefaultValidator.Validate(data))

	cfg := &configs.Config{}
	require.NoError(t, yaml.NewDecoder(bytes.NewReader(configs.DefaultYAML())).Decode(cfg))
	assert.Equal(t, configs.Kind, cfg.GetKind())
	assert.Equal(t, "simple.d", cfg.SimpleRules.RulesDir)
	assert.Equal(t, 100*time.Millisecond, cfg.SimpleRules.RegexTimeout)
	assert.Equal(t, 10*time.Second, cfg.Daemon.Interval)
}

func TestDefaultValidator(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input  string
		errMsg string
	}{
		"valid": {
			input: "apiVersion: simplerules.ulatencyd.org/v1beta1\nkind: Configuration\n",
		},
		"wrong kind": {
			input:  "apiVersion: simplerules.ulatencyd.org/v1beta1\nkind: Policy\n",
			errMsg: "$.kind",
		},
		"bad duration": {
			input:  "apiVersion: simplerules.ulatencyd.org/v1beta1\nkind: Configuration\ndaemon:\n  interval: soon\n",
			errMsg: "$.daemon.interval",
		},
		"unknown field": {
			input:  "apiVersion: simplerules.ulatencyd.org/v1beta1\nkind: Configuration\nsimplerules:\n  rules: x\n",
			errMsg: "$.simplerules",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var data any

			require.NoError(t, yaml.NewDecoder(bytes.NewReader([]byte(tc.input))).Decode(&data))

			err := configs.DefaultValidator.Validate(data)
			if tc.errMsg == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestSimpleRulesConfig_FilterOptions(t *testing.T) {
	t.Parallel()

	cfg := configs.New()
	cfg.SimpleRules.ConfigDir = "/etc/test"

	sr := filter.NewSimpleRules(cfg.SimpleRules.FilterOptions()...)

	assert.Equal(t, "/etc/test/simple.d", sr.RulesDir())
	assert.Equal(t, "/etc/test/simple.conf", sr.RulesFile())
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	path := "/etc/ulatencyd/simplerules.yaml"

	require.NoError(t, configs.WriteDefault(fs, path, false))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, configs.DefaultYAML(), data)

	require.NoError(t, afero.WriteFile(fs, path, []byte("custom\n"), 0o644))
	require.NoError(t, configs.WriteDefault(fs, path, false))

	data, err = afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "custom\n", string(data))

	require.NoError(t, configs.WriteDefault(fs, path, true))

	data, err = afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, configs.DefaultYAML(), data)
}

func TestConfig_MarshalYAML(t *testing.T) {
	t.Parallel()

	b, err := configs.New().MarshalYAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "kind: Configuration")
	assert.Contains(t, string(b), "regexTimeout: 100ms")
}

func TestSchema(t *testing.T) {
	t.Parallel()

	b, err := configs.Schema()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"simplerules"`)
	assert.Contains(t, string(b), `"regexTimeout"`)
}
