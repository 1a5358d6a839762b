package rule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/macropower/simplerules/pkg/flag"
)

// Option keys accepted after the flag name.
const (
	KeyReason    = "reason"
	KeyTimeout   = "timeout"
	KeyPriority  = "priority"
	KeyValue     = "value"
	KeyThreshold = "threshold"
	KeyInherit   = "inherit"
)

// applyOption sets key on tmpl. It returns false for unknown keys.
func applyOption(tmpl *flag.Template, key, value string) (bool, error) {
	var err error

	switch key {
	case KeyReason:
		tmpl.Reason = value
	case KeyTimeout:
		tmpl.Timeout, err = parseTimeout(value)
	case KeyPriority:
		var n int64

		n, err = strconv.ParseInt(value, 10, 32)
		tmpl.Priority = int32(n)
	case KeyValue:
		tmpl.Value, err = strconv.ParseInt(value, 10, 64)
	case KeyThreshold:
		tmpl.Threshold, err = strconv.ParseInt(value, 10, 64)
	case KeyInherit:
		tmpl.Inherit, err = parseInherit(value)
	default:
		return false, nil
	}

	if err != nil {
		return true, fmt.Errorf("%w %s=%q: %w", ErrInvalidOption, key, value, err)
	}

	return true, nil
}

// parseTimeout accepts whole seconds or a Go duration string.
func parseTimeout(value string) (time.Duration, error) {
	var d time.Duration

	secs, err := strconv.ParseInt(value, 10, 64)
	if err == nil {
		d = time.Duration(secs) * time.Second
	} else {
		d, err = time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("not seconds or a duration: %w", err)
		}
	}

	if d < 0 {
		return 0, fmt.Errorf("negative timeout %s", d)
	}

	return d, nil
}

// parseInherit accepts booleans and integers, where non-zero is true.
func parseInherit(value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err == nil {
		return b, nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, fmt.Errorf("not a bool or integer: %w", err)
	}

	return n != 0, nil
}
