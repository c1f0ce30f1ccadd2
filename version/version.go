package version

import "fmt"

// these values are set via ldflags during the release build
//
//nolint:gochecknoglobals // by design
var (
	Version     = "dev"
	GitCommit   = "none"
	BuildDate   = "unknown"
	FullVersion = fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
)
