package version

import "fmt"

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full() string {
	return fmt.Sprintf("nexara-tray %s, commit %s, built at %s", Version, Commit, Date)
}
