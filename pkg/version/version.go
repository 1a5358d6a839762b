// Package version reports build information for simplerules.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   string // Set via ldflags.
	Branch    string
	BuildUser string
	BuildDate string

	Revision  = getRevision()
	GoVersion = runtime.Version()
	GoOS      = runtime.GOOS
	GoArch    = runtime.GOARCH
)

// GetVersion returns [Version], or the VCS revision when it is unset.
func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

// Info returns a one-line summary of the build.
func Info() string {
	return fmt.Sprintf("(version=%s, revision=%s, branch=%s)", GetVersion(), Revision, Branch)
}

// BuildContext returns the toolchain and build host details.
func BuildContext() string {
	return fmt.Sprintf("(go=%s, platform=%s/%s, user=%s, date=%s)", GoVersion, GoOS, GoArch, BuildUser, BuildDate)
}

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			if len(v.Value) > 7 {
				rev = v.Value[:7]
			} else {
				rev = v.Value
			}

		case "vcs.modified":
			if v.Value == "true" {
				modified = true
			}
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
