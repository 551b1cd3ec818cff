// Package version reports the idpforge build and stamps generated artifacts.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/idpforge/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/idpforge/internal/version.Commit=abc123
//	  -X github.com/soyeahso/idpforge/internal/version.Date=2026-01-01"
//
// Without ldflags, Commit and Date come from the VCS stamp of the Go build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const unknown = "unknown"

// Revision is the short commit the binary was built from, "+dirty" when the
// tree had local changes.
func Revision() string {
	rev, _ := resolve()
	return rev
}

func resolve() (rev, date string) {
	rev, date = Commit, Date
	if rev != unknown && date != unknown {
		return short(rev), date
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return short(rev), date
	}
	vcsRev, vcsDate := fromBuildInfo(bi)
	if rev == unknown && vcsRev != "" {
		rev = vcsRev
	}
	if date == unknown && vcsDate != "" {
		date = vcsDate
	}
	return short(rev), date
}

// fromBuildInfo reads the vcs.* settings the go command embeds.
func fromBuildInfo(bi *debug.BuildInfo) (rev, date string) {
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev != "" {
		rev = short(rev)
		if dirty {
			rev += "+dirty"
		}
	}
	return rev, date
}

// Info returns a formatted version string.
func Info() string {
	rev, date := resolve()
	return fmt.Sprintf("idpforge %s (commit: %s, built: %s, %s/%s)",
		Version, rev, date, runtime.GOOS, runtime.GOARCH)
}

// Fields returns the build metadata as a flat map for JSON output.
func Fields() map[string]string {
	rev, date := resolve()
	return map[string]string{
		"version": Version,
		"commit":  rev,
		"date":    date,
		"go":      runtime.Version(),
	}
}

// GeneratedBy is the value stamped into generated artifacts.
func GeneratedBy() string {
	return "idpforge/" + Version
}

func short(s string) string {
	if len(s) > 7 && s[7] != '+' {
		return s[:7]
	}
	return s
}
