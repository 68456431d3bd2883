// Package version reports the build version of the wsgate binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/wsgate/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/wsgate/internal/version.Commit=abc123"
//
// Unset values come from the module's VCS build settings, then fall back to
// a dev version.
var (
	Version = ""
	Commit  = ""
)

func init() {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	Version, Commit = resolve(Version, Commit, settings, time.Now())
}

// resolve fills version and commit from VCS settings where they are empty.
func resolve(version, commit string, settings []debug.BuildSetting, now time.Time) (string, string) {
	var revision, modified, vcsTime string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}

	if commit == "" && revision != "" {
		if len(revision) > 7 {
			revision = revision[:7]
		}
		commit = revision
		if modified == "true" {
			commit += "-dirty"
		}
	}
	if version == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			version = "dev-" + t.Format("20060102")
		}
	}

	if version == "" {
		version = "dev-" + now.Format("20060102-150405")
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent identifies the client in the WebSocket handshake.
func UserAgent(component string) string {
	return fmt.Sprintf("%s/%s (%s/%s)", component, Version, runtime.GOOS, runtime.GOARCH)
}
