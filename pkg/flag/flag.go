// Package flag defines the scheduling annotations that filters attach to
// processes.
//
// A [Template] is the prototype stored with a rule. Each time the rule
// matches, the template is instantiated into a [Flag] whose timeout is
// converted to an absolute expiry.
package flag

import (
	"fmt"
	"strings"
	"time"
)

// Flag is a named annotation attached to a process. The daemon translates
// flags into cgroup placement and priorities.
type Flag struct {
	// Expires is the absolute expiry time. The zero value never expires.
	Expires time.Time `json:"expires,omitzero"`
	// Name identifies the flag, e.g. "user.ui" or "daemon.idle".
	Name string `json:"name"`
	// Source is the name of the filter that created the flag.
	Source string `json:"source"`
	// Reason is a free-form explanation shown to users.
	Reason    string `json:"reason,omitempty"`
	Value     int64  `json:"value,omitempty"`
	Threshold int64  `json:"threshold,omitempty"`
	Priority  int32  `json:"priority,omitempty"`
	// Inherit marks the flag as applying to child processes too.
	Inherit bool `json:"inherit,omitempty"`
}

// Expired reports whether f has an expiry at or before now.
func (f *Flag) Expired(now time.Time) bool {
	return !f.Expires.IsZero() && !now.Before(f.Expires)
}

func (f *Flag) String() string {
	var sb strings.Builder

	sb.WriteString(f.Name)

	if f.Reason != "" {
		fmt.Fprintf(&sb, " reason=%q", f.Reason)
	}
	if f.Priority != 0 {
		fmt.Fprintf(&sb, " priority=%d", f.Priority)
	}
	if f.Value != 0 {
		fmt.Fprintf(&sb, " value=%d", f.Value)
	}
	if f.Threshold != 0 {
		fmt.Fprintf(&sb, " threshold=%d", f.Threshold)
	}
	if f.Inherit {
		sb.WriteString(" inherit")
	}

	return sb.String()
}

// Template is the flag prototype carried by a rule.
type Template struct {
	Name      string        `json:"name"`
	Reason    string        `json:"reason,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Value     int64         `json:"value,omitempty"`
	Threshold int64         `json:"threshold,omitempty"`
	Priority  int32         `json:"priority,omitempty"`
	Inherit   bool          `json:"inherit,omitempty"`
}

// Instantiate creates a new [Flag] from the template. The reason is only
// copied when set, and the expiry is only set for a positive timeout.
func (t *Template) Instantiate(source string, now time.Time) *Flag {
	f := &Flag{
		Name:      t.Name,
		Source:    source,
		Priority:  t.Priority,
		Value:     t.Value,
		Threshold: t.Threshold,
		Inherit:   t.Inherit,
	}
	if t.Reason != "" {
		f.Reason = t.Reason
	}
	if t.Timeout > 0 {
		f.Expires = now.Add(t.Timeout)
	}

	return f
}
