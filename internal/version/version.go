package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time:
// go build -ldflags "-X github.com/memohai/larkrelay/internal/version.Version=1.2.3"
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func GetInfo() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
