// Package rule parses simple rule lines and matches them against processes.
//
// A rule line is split into shell-style words. The first word selects the
// matcher, the second names the flag, and the remaining words are
// key=value options for the flag:
//
//	/usr/bin/Xorg           user.ui        priority=10
//	firefox                 user.browser   reason=web
//	cmd:"python3 -m http"   user.devel
//	re_exe:'^/opt/.*/java$' user.jvm       value=3 timeout=300
//	re_cmd:'--type=(gpu|renderer)' user.renderer
//	re_base:'^kworker'      kernel.worker  inherit=1
//	cel:'size(args) > 20'   user.heavy
//
// Regular expressions use Perl/PCRE-compatible syntax. Characters that the
// shell treats specially, such as | ( ) ; & < >, must be quoted; single
// quotes keep backslashes intact.
package rule
