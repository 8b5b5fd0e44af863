// Package version exposes build version information.
package version

import (
	"runtime/debug"
	"time"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Info is the resolved build identity.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit,omitempty"`
	GoVersion string    `json:"go_version,omitempty"`
	BuildDate time.Time `json:"build_date,omitempty"`
	IsDirty   bool      `json:"is_dirty,omitempty"`
}

// Get resolves version information from the ldflags variable and the
// embedded VCS build metadata.
func Get() Info {
	info := Info{Version: Version}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = buildInfo.GoVersion
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit := setting.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
			info.GitCommit = commit
		case "vcs.modified":
			info.IsDirty = setting.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				info.BuildDate = t
			}
		}
	}
	return info
}

// Short returns the compact version string used in logs.
func Short() string {
	info := Get()
	out := info.Version
	if info.GitCommit != "" {
		out += "-" + info.GitCommit
	}
	if info.IsDirty {
		out += "-dirty"
	}
	return out
}
