package commands

import "errors"

// ExitError carries a process exit code through cobra's error return. The
// ingest command maps run outcomes onto the pipeline exit codes with it.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCodeFor extracts the exit code from a command error, defaulting to 1
// for errors that carry none.
func ExitCodeFor(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return 1
}
