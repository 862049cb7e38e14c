// Package version holds build metadata injected at link time.
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// GitCommit is the git commit hash the binary was built from.
	GitCommit = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
