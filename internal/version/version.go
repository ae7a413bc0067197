// Package version holds build metadata injected via ldflags.
package version

// Set via -ldflags "-X .../internal/version.Version=..." at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
