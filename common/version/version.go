// Package version carries build metadata stamped at link time.
package version

var (
	// Version is the broker release, set via -ldflags at build time.
	Version = "v0.1.0-dev"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns the human-readable version line used by the CLI.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
