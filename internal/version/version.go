// Package version carries build metadata, stamped in via -ldflags.
package version

var (
	// Version is the percept release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
