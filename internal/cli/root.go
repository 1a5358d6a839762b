package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/simplerules/api/v1beta1/configs"
	"github.com/macropower/simplerules/pkg/config"
	"github.com/macropower/simplerules/pkg/log"
)

const (
	cmdName = "simplerules"
	cmdDesc = `Tag processes with scheduler flags from ulatencyd simple rule files.`
)

type RootArgs struct {
	// Fs is the filesystem used for configuration and rule files.
	Fs afero.Fs

	LogLevel   string
	LogFormat  string
	ConfigPath string
}

func NewRootArgs() *RootArgs {
	return &RootArgs{
		Fs: afero.NewOsFs(),
	}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.ConfigPath, "config", "", "Path to the simplerules configuration file")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}
}

// GetConfigPath returns the --config value or the default path.
func (ra *RootArgs) GetConfigPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	return configs.GetPath()
}

// LoadConfig loads the active configuration.
func (ra *RootArgs) LoadConfig() (*configs.Config, error) {
	path := ra.GetConfigPath()

	// Annotated YAML errors are colored only on a terminal.
	colored := term.IsTerminal(int(os.Stderr.Fd()))

	cfg, err := config.LoadConfig(ra.Fs, path, config.WithColor(colored))
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, nil
}

func NewRootCmd() *cobra.Command {
	return NewRootCmdWithArgs(NewRootArgs())
}

// NewRootCmdWithArgs creates the root command using args, which lets tests
// substitute the filesystem.
func NewRootCmdWithArgs(args *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Example:           cmdExamples,
		PersistentPreRunE: setupLogging(args),
		SilenceUsage:      true,
	}

	args.AddFlags(cmd)

	cmd.AddCommand(
		NewRunCmd(NewRunArgs(args)),
		NewCheckCmd(NewCheckArgs(args)),
		NewMatchCmd(NewMatchArgs(args)),
		NewConfigCmd(args),
	)

	bindEnvVars(cmd)

	return cmd
}

func setupLogging(rc *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), rc.LogLevel, rc.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		logger := slog.New(logHandler)
		slog.SetDefault(logger)
		cmd.SetContext(log.NewContext(cmd.Context(), logger))

		return nil
	}
}
