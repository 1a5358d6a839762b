package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/internal/cli"
)

func TestBindEnvVars(t *testing.T) {
	tcs := map[string]struct {
		envVars       map[string]string
		wantLogLevel  string
		wantLogFormat string
		args          []string
	}{
		"environment variables are bound when no args provided": {
			envVars: map[string]string{
				"SIMPLERULES_LOG_LEVEL":  "debug",
				"SIMPLERULES_LOG_FORMAT": "json",
			},
			args:          []string{},
			wantLogLevel:  "debug",
			wantLogFormat: "json",
		},
		"command line args take precedence over environment variables": {
			envVars: map[string]string{
				"SIMPLERULES_LOG_LEVEL":  "debug",
				"SIMPLERULES_LOG_FORMAT": "json",
			},
			args:          []string{"--log-level", "error", "--log-format", "text"},
			wantLogLevel:  "error",
			wantLogFormat: "text",
		},
		"partial environment variable override": {
			envVars: map[string]string{
				"SIMPLERULES_LOG_LEVEL": "warn",
			},
			args:          []string{"--log-format", "json"},
			wantLogLevel:  "warn",
			wantLogFormat: "json",
		},
		"no environment variables uses defaults": {
			envVars:       map[string]string{},
			args:          []string{},
			wantLogLevel:  "info", // Default value.
			wantLogFormat: "text", // Default value.
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			for key, val := range tc.envVars {
				t.Setenv(key, val)
			}

			cmd := cli.NewRootCmd()
			cmd.SetArgs(tc.args)

			// Parse flags (this triggers environment variable binding).
			err := cmd.ParseFlags(tc.args)
			require.NoError(t, err)

			// Check flag values.
			logLevel, err := cmd.Flags().GetString("log-level")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogLevel, logLevel)

			logFormat, err := cmd.Flags().GetString("log-format")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogFormat, logFormat)
		})
	}
}

//nolint:paralleltest // Sets environment variables.
func TestBindEnvVars_Subcommand(t *testing.T) {
	t.Setenv("SIMPLERULES_INTERVAL", "3s")

	cmd := cli.NewRootCmd()

	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	interval := runCmd.Flags().Lookup("interval")
	require.NotNil(t, interval)
	assert.Equal(t, "3s", interval.Value.String())
}

// Test that flag usage strings are updated to include environment variable names.
func TestEnvironmentVariableUsageUpdate(t *testing.T) {
	t.Parallel()

	cmd := cli.NewRootCmd()

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Contains(t, logLevelFlag.Usage, "$SIMPLERULES_LOG_LEVEL")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Contains(t, configFlag.Usage, "$SIMPLERULES_CONFIG")
}
