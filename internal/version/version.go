package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/fowlink/fowlink/internal/version.Version=v1.2.3 \
//	                   -X github.com/fowlink/fowlink/internal/version.Commit=abc123 \
//	                   -X github.com/fowlink/fowlink/internal/version.BuildDate=2026-01-02"
//
// If not set, they will be populated from git info at runtime (if available),
// or fall back to "dev" with a timestamp.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
	// BuildDate is when the binary was built
	BuildDate = ""
)

func init() {
	if Version == "" || Commit == "" || BuildDate == "" {
		populateFromBuildInfo()
	}

	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildDate == "" {
		BuildDate = "unknown"
	}
}

// populateFromBuildInfo attempts to read version info from Go's build info
// This includes VCS information when built from a git repository
func populateFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	var vcsRevision, vcsModified, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if Commit == "" && vcsRevision != "" {
		// Use short hash (first 7 characters)
		if len(vcsRevision) > 7 {
			Commit = vcsRevision[:7]
		} else {
			Commit = vcsRevision
		}
		if vcsModified == "true" {
			Commit += "-dirty"
		}
	}

	if vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			if Version == "" {
				Version = fmt.Sprintf("dev-%s", t.Format("20060102"))
			}
			if BuildDate == "" {
				BuildDate = t.UTC().Format(time.RFC3339)
			}
		}
	}
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// BuildInfo returns the build metadata line served next to the version,
// e.g. "commit abc1234, built 2026-01-02T10:00:00Z, go1.24.10 linux/arm".
func BuildInfo() string {
	return fmt.Sprintf("commit %s, built %s, %s %s/%s",
		Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
