// Package versions provides version information for the mcpx binary.
package versions

import (
	"fmt"
	"runtime"
)

const unknownStr = "unknown"

// Version information set at build time using -ldflags
var (
	// Version is the current version of mcpx
	Version = "dev"
	// Commit is the git commit hash of the build
	Commit = unknownStr
	// BuildDate is the date the binary was built
	BuildDate = unknownStr
)

// VersionInfo represents the version information of the binary
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the binary
func GetVersionInfo() VersionInfo {
	version := Version
	if version == "dev" && Commit != unknownStr && len(Commit) >= 8 {
		version = fmt.Sprintf("build-%s", Commit[:8])
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
