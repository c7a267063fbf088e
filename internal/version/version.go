// Package version holds the build version of codeshrink.
package version

import "runtime"

// Overridden at build time:
// go build -ldflags "-X codeshrink/internal/version.Version=0.3.0 -X codeshrink/internal/version.Commit=abc123"
var (
	// Version is the semantic version of codeshrink
	Version = "0.3.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// BuildInfo is the structured form of the version, for machine-readable output.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version" toml:"version"`
	Commit    string `json:"commit" yaml:"commit" toml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate" toml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion" toml:"goVersion"`
}

// Info returns a short version string with the abbreviated commit.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "codeshrink version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version()
}

// Get returns the build info.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}
