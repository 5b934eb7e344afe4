package scheduler

import (
	"runtime"

	"github.com/Carmen-Shannon/forge-go/common"
)

// SchedulerBuilderOption is a functional option applied to a scheduler during construction via
// NewScheduler.
type SchedulerBuilderOption func(*scheduler)

// WithWorkerCount sets the number of worker goroutines used for the parallel Setup and Record
// passes. Values below 1 fall back to the default (one per logical CPU).
//
// Parameters:
//   - count: the worker count (minimum 1)
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the worker count option to a scheduler
func WithWorkerCount(count int) SchedulerBuilderOption {
	return func(s *scheduler) {
		if count < 1 {
			count = 0 // resolved to the default at construction
		}
		s.workerCount = count
	}
}

// WithMaxParallelRecord bounds how many tasks may record command lists simultaneously. Defaults
// to the worker count. Lowering it trades recording throughput for less peak allocator and
// scratch usage.
//
// Parameters:
//   - max: the maximum number of concurrently recording tasks (minimum 1)
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the bound to a scheduler
func WithMaxParallelRecord(max int) SchedulerBuilderOption {
	return func(s *scheduler) {
		if max < 1 {
			max = 0
		}
		s.maxParallelRecord = max
	}
}

// WithFailureColor sets the RGBA color the failure screen clears the back buffer to when a
// frame aborts. Components are clamped to [0, 1]. The default is an unmissable magenta.
//
// Parameters:
//   - color: the failure clear color
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the failure color to a scheduler
func WithFailureColor(color common.Color) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.failureColor = color.Clamped()
	}
}

// WithProfiling enables per-frame scheduler statistics logging (FPS, tasks, barriers, batches,
// heap usage) through the profiler.
//
// Parameters:
//   - enabled: if true, enables profiling output
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the profiling option to a scheduler
func WithProfiling(enabled bool) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.profilingEnabled = enabled
	}
}

// defaultWorkerCount is one worker per logical CPU, matching the parallelism the record pass
// can actually extract.
func defaultWorkerCount() int {
	return common.Coalesce(runtime.NumCPU(), 1)
}
