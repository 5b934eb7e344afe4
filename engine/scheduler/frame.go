package scheduler

import (
	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// FrameContext carries the per-frame inputs the engine hands to Scheduler.Execute: the frame
// index, the back buffer to produce, the command queues, the transient pools, pending uploads,
// and the fence used for cross-frame synchronization.
type FrameContext struct {
	// FrameIndex is the monotonically increasing index of this frame.
	FrameIndex uint64

	// BackBuffer is the swap-chain image this frame renders into.
	BackBuffer gpu.Resource

	// GraphicsQueue executes graphics command lists. Required.
	GraphicsQueue gpu.CommandQueue

	// ComputeQueue executes async-compute command lists. Optional; tasks preferring the compute
	// queue fall back to the graphics queue when nil.
	ComputeQueue gpu.CommandQueue

	// CopyQueue executes copy command lists. Optional; tasks preferring the copy queue fall back
	// to the graphics queue when nil. The implicit upload task always runs on the graphics queue.
	CopyQueue gpu.CommandQueue

	// Allocators is the pool command allocators are drawn from for this frame.
	Allocators *CommandAllocatorPool

	// Scratch is the pool of per-task scratch spaces for transient constant data.
	Scratch *ScratchSpacePool

	// DescriptorHeap hands out transient descriptor slots for the frame.
	DescriptorHeap gpu.DescriptorHeap

	// Fence is the GPU fence used for cross-frame synchronization, cross-queue ordering, and
	// fence-gated pool reclamation. Values are managed by the scheduler and increase
	// monotonically across frames.
	Fence gpu.Fence

	// Uploads describes data the implicit first task of the frame must copy into GPU resources
	// before any pipeline task runs.
	Uploads []UploadDescription
}

// queue returns the frame's queue of the given kind, falling back to the graphics queue when
// that kind is not available.
func (f *FrameContext) queue(kind gpu.QueueKind) gpu.CommandQueue {
	switch kind {
	case gpu.QueueKindCompute:
		if f.ComputeQueue != nil {
			return f.ComputeQueue
		}
	case gpu.QueueKindCopy:
		if f.CopyQueue != nil {
			return f.CopyQueue
		}
	}
	return f.GraphicsQueue
}

// UploadDescription describes one pending data upload: a staged source resource whose contents
// must be copied into a target resource, and the state the target should be left in. The
// scheduler turns the frame's upload descriptions into the usage list of the implicit upload
// task, so staged resources flow through the ordinary barrier-injection path.
type UploadDescription struct {
	// Source is the staging resource holding the data, ready to be read as a copy source.
	Source gpu.Resource

	// SourceOffset is the byte offset into the source for ranged buffer copies.
	SourceOffset uint64

	// Target is the resource receiving the data.
	Target gpu.Resource

	// TargetOffset is the byte offset into the target for ranged buffer copies.
	TargetOffset uint64

	// Size is the number of bytes to copy. Zero requests a full-resource copy.
	Size uint64

	// TargetState is the state the target transitions to after the copy (for example
	// shader-resource for a streamed texture).
	TargetState common.ResourceState
}
