// Package version exposes build metadata stamped at link time.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev" fallback.
//
// Usage:
//
//	version.GitCommit  // "a3f8c2d1" or "dev"
//	version.Full()     // "ascent/a3f8c2d1" or "ascent/dev"
package version

import "runtime/debug"

// AppName is the application name used in version strings and user agents.
const AppName = "ascent"

// Overrides are set via -ldflags at build time for container builds where
// .git is unavailable. Empty string means no override.
var (
	versionOverride   string
	gitCommitOverride string
	buildDateOverride string
)

// Version is the release tag, "dev" when unstamped.
var Version = initVersion()

// GitCommit is the short git commit hash (8 chars) from build info.
// Set to "dev" when build info is unavailable (e.g., `go test`, non-git builds).
var GitCommit = initGitCommit()

// BuildDate is the RFC3339 build timestamp, empty when unstamped.
var BuildDate = buildDateOverride

func initVersion() string {
	if versionOverride != "" {
		return versionOverride
	}
	return "dev"
}

func initGitCommit() string {
	if gitCommitOverride != "" {
		if len(gitCommitOverride) > 8 {
			return gitCommitOverride[:8]
		}
		return gitCommitOverride
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "ascent/<commit>" for use in user-agent strings, logging, etc.
func Full() string {
	return AppName + "/" + GitCommit
}
