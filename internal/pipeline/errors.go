package pipeline

import "errors"

// Error taxonomy of the orchestrator. Per-unit failures stay inside the
// run and are only counted; these sentinels mark the failures that end
// it. The CLI maps them to exit codes.
var (
	// ErrConfiguration marks invalid or missing configuration detected
	// before any work starts. Exit code 3.
	ErrConfiguration = errors.New("pipeline: configuration error")

	// ErrFatalIngestion marks an unrecoverable failure mid-run: a dead
	// adapter at discovery, schema drift in the writer, or repeated
	// flush failures. Metrics and the quality report are still written.
	// Exit code 2.
	ErrFatalIngestion = errors.New("pipeline: fatal ingestion error")
)

// CLI exit codes, mapped from the taxonomy.
const (
	// ExitOK is a clean run, including a canceled one.
	ExitOK = 0

	// ExitPartial is a completed run with non-fatal per-unit failures.
	ExitPartial = 1

	// ExitFatal is an aborted run.
	ExitFatal = 2

	// ExitConfig is a run refused for configuration reasons.
	ExitConfig = 3
)

// ExitCode maps a Run outcome onto the CLI exit codes.
func ExitCode(res Result, err error) int {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ExitConfig
	case err != nil:
		return ExitFatal
	case res.UnitFailures > 0 || res.FlushFailures > 0:
		return ExitPartial
	default:
		return ExitOK
	}
}
