// Package version holds build metadata stamped via -ldflags.
package version

var (
	// Version is the release version, e.g. "0.3.1".
	Version = "dev"
	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)
