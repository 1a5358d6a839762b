package rule

import (
	"strings"

	"github.com/macropower/simplerules/pkg/proc"
)

// Kind identifies what a rule matches against and how.
type Kind int

const (
	// KindBasename is a literal prefix of the cmdline basename.
	KindBasename Kind = iota
	// KindExe is a literal prefix of the executable path.
	KindExe
	// KindCmdline is a literal prefix of the space-joined cmdline.
	KindCmdline
	// KindRegexExe is a regular expression searched in the executable path.
	KindRegexExe
	// KindRegexCmdline is a regular expression searched in the cmdline.
	KindRegexCmdline
	// KindRegexBasename is a regular expression searched in the basename.
	KindRegexBasename
	// KindCEL is a boolean CEL expression over the process.
	KindCEL
)

// Prefixes for the matcher word. A leading "/" selects [KindExe] and any
// other word selects [KindBasename].
const (
	PrefixCmdline       = "cmd:"
	PrefixRegexExe      = "re_exe:"
	PrefixRegexCmdline  = "re_cmd:"
	PrefixRegexBasename = "re_base:"
	PrefixCEL           = "cel:"
)

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{PrefixCmdline, KindCmdline},
	{PrefixRegexExe, KindRegexExe},
	{PrefixRegexCmdline, KindRegexCmdline},
	{PrefixRegexBasename, KindRegexBasename},
	{PrefixCEL, KindCEL},
}

// splitMatcher determines the kind of the matcher word and strips its prefix.
func splitMatcher(word string) (Kind, string) {
	if strings.HasPrefix(word, "/") {
		return KindExe, word
	}

	for _, p := range prefixes {
		if pattern, ok := strings.CutPrefix(word, p.prefix); ok {
			return p.kind, pattern
		}
	}

	return KindBasename, word
}

func (k Kind) String() string {
	switch k {
	case KindBasename:
		return "basename"
	case KindExe:
		return "exe"
	case KindCmdline:
		return "cmd"
	case KindRegexExe:
		return "re_exe"
	case KindRegexCmdline:
		return "re_cmd"
	case KindRegexBasename:
		return "re_base"
	case KindCEL:
		return "cel"
	}

	return "unknown"
}

// Attr returns the process attributes the kind needs.
func (k Kind) Attr() proc.Attr {
	switch k {
	case KindExe, KindRegexExe:
		return proc.AttrExe
	case KindCEL:
		return proc.AttrExe | proc.AttrCmdline
	default:
		return proc.AttrCmdline
	}
}

// IsRegex reports whether the kind uses a regular expression.
func (k Kind) IsRegex() bool {
	return k == KindRegexExe || k == KindRegexCmdline || k == KindRegexBasename
}

// prefix returns the matcher word prefix used to write the kind.
func (k Kind) prefix() string {
	for _, p := range prefixes {
		if p.kind == k {
			return p.prefix
		}
	}

	return ""
}
