package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/simplerules/pkg/filter"
)

// ErrorHandler renders command errors for [fang.WithErrorHandler], with a
// hint for usage and rule loading errors.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	mustN(fmt.Fprintln(w))

	hint, ok := errorHint(err)
	if !ok {
		return
	}

	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		styles.ErrorText.UnsetWidth().Render("Try"),
		styles.Program.Flag.Render(hint),
		styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for details."),
	)))
	mustN(fmt.Fprintln(w))
}

func errorHint(err error) (string, bool) {
	switch {
	case isUsageError(err):
		return "--help", true
	case errors.Is(err, ErrNoRules), errors.Is(err, filter.ErrNoRules), errors.Is(err, ErrRuleIssues):
		return cmdName + " check --verbose", true
	}

	return "", false
}

// XXX: this is a hack to detect usage errors.
// See: https://github.com/spf13/cobra/pull/2266
func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
		"requires --exe",
		"arguments must follow --",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
