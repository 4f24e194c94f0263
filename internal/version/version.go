// Package version holds build metadata for the docqa binary, set with
// -ldflags "-X github.com/54b3r/docqa-go/internal/version.Version=v1.2.3".
package version

import "fmt"

// Set at build time. The defaults keep `go run` builds usable.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("docqa %s (commit %s, built %s)", Version, Commit, BuildDate)
}
