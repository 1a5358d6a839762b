package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/ruleset"
)

var (
	// ErrRuleIssues is returned by check when a rule file has errors.
	ErrRuleIssues = errors.New("rule files have issues")

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type CheckArgs struct {
	*RootArgs

	Strict  bool
	Verbose bool
}

func NewCheckArgs(rootArgs *RootArgs) *CheckArgs {
	return &CheckArgs{
		RootArgs: rootArgs,
	}
}

func (ca *CheckArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ca.Strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().BoolVarP(&ca.Verbose, "verbose", "v", false, "List every loaded rule")
}

func NewCheckCmd(ca *CheckArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the rule files and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return check(cmd, ca)
		},
	}
	ca.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func check(cmd *cobra.Command, ca *CheckArgs) error {
	cfg, err := ca.LoadConfig()
	if err != nil {
		return err
	}

	sr := filter.NewSimpleRules(append(cfg.SimpleRules.FilterOptions(), filter.WithFs(ca.Fs))...)
	set := sr.Load(cmd.Context())

	_, err = fmt.Fprint(cmd.OutOrStdout(), renderCheck(set, ca.Verbose))
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if set.Len() == 0 {
		return fmt.Errorf("%w from %s or %s", ErrNoRules, sr.RulesDir(), sr.RulesFile())
	}

	failed := len(set.Errors())
	if ca.Strict {
		failed = len(set.Issues)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %s", ErrRuleIssues, english.Plural(failed, "problem", ""))
	}

	return nil
}

func renderCheck(set *ruleset.Set, verbose bool) string {
	var sb strings.Builder

	for _, issue := range set.Issues {
		var le *ruleset.LineError
		if errors.As(issue, &le) && le.Warning {
			sb.WriteString(warnStyle.Render("warning: ") + issue.Error() + "\n")
		} else {
			sb.WriteString(errStyle.Render("error: ") + issue.Error() + "\n")
		}
	}

	for _, name := range set.Skipped {
		sb.WriteString(dimStyle.Render("skipped "+name) + "\n")
	}

	if verbose {
		for _, r := range set.Rules {
			sb.WriteString("  " + r.String() + "\n")
		}
	}

	fmt.Fprintf(&sb, "%s from %s\n",
		english.Plural(set.Len(), "rule", ""),
		english.Plural(len(set.Files), "file", ""),
	)

	return sb.String()
}
