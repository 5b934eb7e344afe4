package scheduler

import "errors"

// Scheduler error kinds. Frame-level failures wrap one of these sentinels, so callers can
// classify with errors.Is while still seeing the failing task in the message.
var (
	// ErrPipelineInvalid indicates the pipeline handed to SetPipeline contains a cycle or a
	// dangling edge. Never raised during a frame.
	ErrPipelineInvalid = errors.New("scheduler: pipeline is invalid")

	// ErrPipelineBusy indicates a lifecycle operation was requested while a frame is in flight.
	// The frame itself continues unaffected.
	ErrPipelineBusy = errors.New("scheduler: frame in flight")

	// ErrNoPipeline indicates Execute was called before any pipeline was set.
	ErrNoPipeline = errors.New("scheduler: no pipeline set")

	// ErrSetupFailed indicates a task's Setup returned an error or panicked. The frame is
	// aborted and the failure screen rendered; subsequent frames may run normally.
	ErrSetupFailed = errors.New("scheduler: task setup failed")

	// ErrExecuteFailed indicates a task's Execute returned an error or panicked. Handled like
	// ErrSetupFailed.
	ErrExecuteFailed = errors.New("scheduler: task execute failed")

	// ErrSubmissionFailed indicates the GPU API rejected a command list. The frame is aborted
	// and the pipeline is invalidated until replaced with SetPipeline.
	ErrSubmissionFailed = errors.New("scheduler: command list submission rejected")
)
