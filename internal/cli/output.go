package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/flag"
	"github.com/macropower/simplerules/pkg/proc"
	"github.com/macropower/simplerules/pkg/yaml"
)

const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

var (
	// AllOutputs lists the accepted --output values.
	AllOutputs = []string{OutputText, OutputJSON, OutputYAML}

	ErrUnknownOutput = errors.New("unknown output format")

	pidStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
	flagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Report is the result of a pass or a match, as printed by the CLI.
type Report struct {
	Pass      *PassReport      `json:"pass,omitempty"`
	Processes []*ProcessReport `json:"processes"`
}

// PassReport summarizes [filter.PassStats].
type PassReport struct {
	Duration  time.Duration `json:"duration"`
	Processes int           `json:"processes"`
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Expired   int           `json:"expired"`
	Runs      int           `json:"runs"`
}

// ProcessReport lists the flags attached to one process.
type ProcessReport struct {
	Cmdfile string       `json:"cmdfile,omitempty"`
	Exe     string       `json:"exe,omitempty"`
	Rules   []string     `json:"rules,omitempty"`
	Flags   []*flag.Flag `json:"flags"`
	PID     int          `json:"pid"`
}

func newPassReport(stats filter.PassStats) *PassReport {
	return &PassReport{
		Duration:  stats.Duration,
		Processes: stats.Processes,
		Added:     stats.Added,
		Removed:   stats.Removed,
		Expired:   stats.Expired,
		Runs:      stats.Runs,
	}
}

// newProcessReport reports the flags p carries from source. Attributes that
// were never loaded are left empty.
func newProcessReport(p *proc.Process, source string) *ProcessReport {
	pr := &ProcessReport{PID: p.PID()}
	for _, f := range p.Flags() {
		if f.Source == source {
			pr.Flags = append(pr.Flags, f)
		}
	}

	if p.Err(proc.AttrExe) == nil {
		pr.Exe = p.Exe()
	}
	if p.Err(proc.AttrCmdline) == nil {
		pr.Cmdfile = p.Cmdfile()
	}

	return pr
}

// newTableReport reports every process in t that carries a flag from source.
func newTableReport(t *proc.Table, source string) []*ProcessReport {
	var reports []*ProcessReport

	for _, p := range t.List() {
		pr := newProcessReport(p, source)
		if len(pr.Flags) > 0 {
			reports = append(reports, pr)
		}
	}

	slices.SortFunc(reports, func(a, b *ProcessReport) int {
		return a.PID - b.PID
	})

	return reports
}

func validateOutput(output string) error {
	if !slices.Contains(AllOutputs, output) {
		return fmt.Errorf("%w: %q", ErrUnknownOutput, output)
	}

	return nil
}

// writeReport writes r to w in the given output format.
func writeReport(w io.Writer, output string, r *Report, now time.Time) error {
	switch output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(r)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

	case OutputYAML:
		enc := yaml.NewEncoder(w)

		err := enc.Encode(r)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		err = enc.Close()
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

	case OutputText:
		_, err := io.WriteString(w, renderText(r, now))
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutput, output)
	}

	return nil
}

func renderText(r *Report, now time.Time) string {
	var sb strings.Builder

	for _, pr := range r.Processes {
		name := pr.Cmdfile
		if name == "" {
			name = pr.Exe
		}

		fmt.Fprintf(&sb, "%s %s\n", pidStyle.Render(fmt.Sprintf("%7d", pr.PID)), name)

		for _, f := range pr.Flags {
			line := "        " + flagStyle.Render(f.String())
			if !f.Expires.IsZero() {
				line += dimStyle.Render(" expires " + humanize.RelTime(f.Expires, now, "ago", "from now"))
			}

			sb.WriteString(line + "\n")
		}

		for _, rs := range pr.Rules {
			sb.WriteString("        " + dimStyle.Render("matched "+rs) + "\n")
		}
	}

	if r.Pass != nil {
		fmt.Fprintf(&sb, "%s processes (%s new, %s exited), %s flags expired, pass took %s\n",
			humanize.Comma(int64(r.Pass.Processes)),
			humanize.Comma(int64(r.Pass.Added)),
			humanize.Comma(int64(r.Pass.Removed)),
			humanize.Comma(int64(r.Pass.Expired)),
			humanize.SIWithDigits(r.Pass.Duration.Seconds(), 2, "s"),
		)
	}

	return sb.String()
}
