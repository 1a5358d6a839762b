package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Flags that never read from the environment.
var unboundFlags = []string{"help", "version"}

// bindEnvVars binds environment variables to the flags of cmd. The variable
// for a flag is SIMPLERULES_<NAME>, with the name upper-cased and dashes
// replaced by underscores:
//   - "log-level" reads SIMPLERULES_LOG_LEVEL
//   - "metrics-addr" reads SIMPLERULES_METRICS_ADDR
//
// Arguments take precedence over environment variables, which take precedence
// over default values. The variable name is appended to the flag usage so it
// shows in help output.
func bindEnvVars(cmd *cobra.Command) {
	cmd.Flags().VisitAll(bindFlagToEnv)
	cmd.PersistentFlags().VisitAll(bindFlagToEnv)
}

func bindFlagToEnv(flag *pflag.Flag) {
	if slices.Contains(unboundFlags, flag.Name) {
		return
	}

	envName := flagToEnvName(flag.Name)

	if !strings.Contains(flag.Usage, envName) {
		flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, envName)
	}

	// Set on the command line.
	if flag.Changed {
		return
	}

	envValue, ok := os.LookupEnv(envName)
	if !ok {
		return
	}

	err := flag.Value.Set(envValue)
	if err != nil {
		// Keep the default value.
		slog.Error("failed to set flag from environment variable",
			slog.String("flag", flag.Name),
			slog.String("env", envName),
			slog.String("value", envValue),
			slog.Any("error", err),
		)
	}
}

// flagToEnvName converts a flag name to its environment variable name.
func flagToEnvName(flagName string) string {
	envName := strings.ReplaceAll(flagName, "-", "_")
	return strings.ToUpper(cmdName + "_" + envName)
}
