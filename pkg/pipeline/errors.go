package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoExecutionContext is returned by Run.Wait when the very first worker of
// a run cannot be created. With no worker at all the run can make no progress,
// so this is the only failure surfaced as a hard error to the caller.
var ErrNoExecutionContext = errors.New("no execution context could be created")

// DiagnosticKind classifies a diagnostic emitted on the run's diagnostic
// channel.
type DiagnosticKind string

const (
	// DiagnosticTaskError - the caller's routine returned an error for one
	// item; ordinary output, never triggers a worker restart.
	DiagnosticTaskError DiagnosticKind = "task_error"
	// DiagnosticWorkerFailed - a worker's execution terminated abnormally.
	DiagnosticWorkerFailed DiagnosticKind = "worker_failed"
	// DiagnosticCreationFailed - a worker could not be created or initialized.
	DiagnosticCreationFailed DiagnosticKind = "creation_failed"
	// DiagnosticTimeout - elapsed time passed MaxDuration, run aborted.
	DiagnosticTimeout DiagnosticKind = "timeout"
	// DiagnosticCanceled - external cancellation observed, run aborted.
	DiagnosticCanceled DiagnosticKind = "canceled"
	// DiagnosticTeardown - a worker still active at final cleanup was
	// force-stopped.
	DiagnosticTeardown DiagnosticKind = "teardown"
)

// Diagnostic is a non-fatal condition surfaced to the caller on the run's
// diagnostic channel, separate from the output stream.
type Diagnostic struct {
	Kind     DiagnosticKind
	WorkerID string
	Err      error
}

func (d Diagnostic) String() string {
	if d.WorkerID == "" {
		return fmt.Sprintf("%s: %v", d.Kind, d.Err)
	}
	return fmt.Sprintf("%s (worker %s): %v", d.Kind, d.WorkerID, d.Err)
}
