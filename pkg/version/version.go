// Package version reports the hybridrag build.
package version

import (
	"runtime"
	"runtime/debug"
)

// Version is set with -ldflags "-X github.com/Aman-CERP/hybridrag/pkg/version.Version=v1.2.3".
var Version = "dev"

// Commit may be set the same way. When empty, the VCS revision stamped
// by the go tool is used.
var Commit = ""

// BuildInfo is the JSON form of the build.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// Short returns the version number.
func Short() string {
	return Version
}

// GetInfo returns the build information.
func GetInfo() BuildInfo {
	info := BuildInfo{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String formats info as "hybridrag <version> (<commit>) <go version>".
func (info BuildInfo) String() string {
	s := "hybridrag " + info.Version
	if commit := info.Commit; commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		if info.Modified {
			commit += "-dirty"
		}
		s += " (" + commit + ")"
	}
	return s + " " + info.GoVersion
}
