// Package versions exposes build version information.
package versions

import (
	"fmt"
	"runtime"
)

// Set at build time through -ldflags.
var (
	// Version is the semantic release version
	Version = "dev"

	// Commit is the git commit the binary was built from
	Commit = "unknown"

	// BuildDate is the UTC build timestamp
	BuildDate = "unknown"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information of the running binary.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
