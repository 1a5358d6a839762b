package cli

import (
	"fmt"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/proc"
)

type MatchArgs struct {
	*RootArgs

	Exe     string
	Cmdline string
	Output  string
	Args   []string
	PID    int
}

func NewMatchArgs(rootArgs *RootArgs) *MatchArgs {
	return &MatchArgs{
		RootArgs: rootArgs,
	}
}

func (ma *MatchArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ma.Exe, "exe", "", "Executable path of the process")
	cmd.Flags().StringVar(&ma.Cmdline, "cmdline", "", "Command line of the process, split like a shell would")
	cmd.Flags().IntVar(&ma.PID, "pid", 0, "Process ID to report")
	cmd.Flags().StringVarP(&ma.Output, "output", "o", OutputText, fmt.Sprintf("Output format, one of: %s", AllOutputs))

	err := cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(AllOutputs, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func NewMatchCmd(ma *MatchArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [--exe path] [--cmdline string | -- argv...]",
		Short: "Show the flags the rules attach to a synthetic process",
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() > 0 {
				return fmt.Errorf("arguments must follow --, received %d before it", cmd.ArgsLenAtDash())
			}
			if ma.Cmdline != "" && len(args) > 0 {
				return fmt.Errorf("--cmdline can't be combined with arguments after --")
			}
			if ma.Exe == "" && ma.Cmdline == "" && len(args) == 0 {
				return fmt.Errorf("requires --exe, --cmdline, or arguments after --")
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ma.Args = args
			if ma.Cmdline != "" {
				argv, err := splitCmdline(ma.Cmdline)
				if err != nil {
					return err
				}

				ma.Args = argv
			}

			return match(cmd, ma)
		},
	}
	ma.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func match(cmd *cobra.Command, ma *MatchArgs) error {
	err := validateOutput(ma.Output)
	if err != nil {
		return err
	}

	cfg, err := ma.LoadConfig()
	if err != nil {
		return err
	}

	now := time.Now()
	sr := filter.NewSimpleRules(append(cfg.SimpleRules.FilterOptions(),
		filter.WithFs(ma.Fs),
		filter.WithClock(func() time.Time { return now }),
	)...)

	_, err = sr.Reload(cmd.Context())
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	p := proc.NewStatic(ma.PID, ma.Exe, ma.Args)
	sr.Run(cmd.Context(), p)

	pr := newProcessReport(p, sr.Name())
	for _, r := range sr.Match(p) {
		pr.Rules = append(pr.Rules, r.String())
	}

	return writeReport(cmd.OutOrStdout(), ma.Output, &Report{
		Processes: []*ProcessReport{pr},
	}, now)
}

// splitCmdline splits s into argv without expanding variables or
// backticks.
func splitCmdline(s string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false

	argv, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse --cmdline: %w", err)
	}
	if parser.Position >= 0 {
		return nil, fmt.Errorf("parse --cmdline: unquoted shell operator at column %d", parser.Position+1)
	}

	return argv, nil
}
