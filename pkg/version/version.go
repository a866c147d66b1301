// Package version exposes build-time metadata for the sdc binary.
//
// The variables are overridden at link time:
//
//	go build -ldflags "-X github.com/somali-nlp/somali-dialect-classifier/pkg/version.Version=v1.2.0"
package version

import "runtime/debug"

// Build metadata populated via -ldflags. Defaults identify a source build.
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC 3339 format.
	Date = "unknown"
)

// InitBinaryVersion fills Commit from embedded VCS build info when the binary
// was built without explicit ldflags (plain `go build` or `go install`).
func InitBinaryVersion() {
	if Commit != "unknown" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value

			return
		}
	}
}
