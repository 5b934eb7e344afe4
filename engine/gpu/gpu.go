// Package gpu defines the abstraction layer over an explicit GPU API: command queues, command
// allocators, command lists, fences, resources, and descriptor heaps. The frame scheduler records
// and submits exclusively through these interfaces, so any backend that implements them (the
// built-in WGPU backend, the noop backend, or a test double) can execute a render pipeline.
package gpu

import (
	"github.com/Carmen-Shannon/forge-go/common"
)

// QueueKind identifies which hardware queue family a command queue feeds.
type QueueKind int

const (
	// QueueKindGraphics executes draw, dispatch, and copy commands.
	QueueKindGraphics QueueKind = iota
	// QueueKindCompute executes dispatch and copy commands asynchronously to graphics.
	QueueKindCompute
	// QueueKindCopy executes copy commands only.
	QueueKindCopy
)

// String returns the lowercase name of the queue kind.
func (k QueueKind) String() string {
	switch k {
	case QueueKindGraphics:
		return "graphics"
	case QueueKindCompute:
		return "compute"
	case QueueKindCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Resource is an opaque identity for a GPU resource (buffer or texture). The scheduler never
// inspects resource contents; it only needs a stable identity, a display name for diagnostics,
// and the subresource count for all-subresources barrier fan-out.
type Resource interface {
	// ID returns the backend-assigned identity of this resource. IDs are unique per backend
	// instance and stable for the lifetime of the resource.
	//
	// Returns:
	//   - uint64: the unique resource identity
	ID() uint64

	// Name returns the debug name of the resource.
	//
	// Returns:
	//   - string: the resource's debug name, or "" if none was assigned
	Name() string

	// SubresourceCount returns the number of addressable subresources (mip levels x array slices).
	// Always >= 1.
	//
	// Returns:
	//   - int: the subresource count
	SubresourceCount() int
}

// Barrier describes a single resource state transition. Barriers are recorded on a command list
// in batches; the GPU flushes caches and stalls the minimum amount needed to make the transition
// visible.
type Barrier struct {
	// Resource is the resource whose state changes.
	Resource Resource
	// Subresource is the subresource index the transition applies to, or common.AllSubresources.
	Subresource int
	// From is the state the resource is currently in.
	From common.ResourceState
	// To is the state the resource transitions to.
	To common.ResourceState
}

// Fence is a monotonic GPU/CPU synchronization counter. The GPU signals values as submissions
// complete; the CPU polls or blocks on values it is interested in.
type Fence interface {
	// CompletedValue returns the highest value the fence has been signaled to.
	//
	// Returns:
	//   - uint64: the last completed value
	CompletedValue() uint64

	// Signal signals the fence to the given value from the CPU. Used to prime the fence chain
	// and to keep it intact on frame failure.
	//
	// Parameters:
	//   - value: the value to signal
	//
	// Returns:
	//   - error: an error if the fence has been destroyed
	Signal(value uint64) error

	// Wait blocks the calling goroutine until the fence completes the given value.
	//
	// Parameters:
	//   - value: the value to wait for
	//
	// Returns:
	//   - error: an error if the fence has been destroyed or the backend device is lost
	Wait(value uint64) error
}

// CommandAllocator backs the memory of recorded command lists. An allocator may only be reset
// once every command list recorded from it has finished executing on the GPU, which is why the
// scheduler returns allocators to their pool on fence completion rather than at submit time.
type CommandAllocator interface {
	// Reset reclaims all memory of command lists previously recorded from this allocator.
	//
	// Returns:
	//   - error: an error if a command list recorded from this allocator is still in flight
	Reset() error

	// NewCommandList creates a new command list in the recording state, backed by this allocator.
	//
	// Returns:
	//   - CommandList: the new command list
	//   - error: an error if list creation fails
	NewCommandList() (CommandList, error)
}

// CommandList is a recorded, immutable-once-closed sequence of GPU commands. The scheduler
// records transition barriers, clears, copies, draws, and dispatches through this interface;
// task implementations receive it wrapped in a scheduler.RenderContext.
type CommandList interface {
	// ResourceBarrier records a batch of transition barriers. Batching adjacent barriers into a
	// single call lets the GPU overlap the required cache flushes.
	//
	// Parameters:
	//   - barriers: the transitions to record
	ResourceBarrier(barriers ...Barrier)

	// ClearRenderTarget records a clear of the given resource to a solid color.
	// The resource must be in the render-target state.
	//
	// Parameters:
	//   - target: the resource to clear
	//   - color: the clear color
	ClearRenderTarget(target Resource, color common.Color)

	// CopyResource records a full-resource copy. The source must be in the copy-source state
	// and the destination in the copy-dest state.
	//
	// Parameters:
	//   - src: the source resource
	//   - dst: the destination resource
	CopyResource(src, dst Resource)

	// CopyBufferRegion records a ranged buffer copy. State requirements match CopyResource.
	//
	// Parameters:
	//   - src: the source buffer
	//   - srcOffset: byte offset into the source
	//   - dst: the destination buffer
	//   - dstOffset: byte offset into the destination
	//   - size: number of bytes to copy
	CopyBufferRegion(src Resource, srcOffset uint64, dst Resource, dstOffset, size uint64)

	// Draw records a non-indexed instanced draw.
	//
	// Parameters:
	//   - vertexCount: vertices per instance
	//   - instanceCount: number of instances
	Draw(vertexCount, instanceCount uint32)

	// Dispatch records a compute dispatch.
	//
	// Parameters:
	//   - x, y, z: the workgroup counts in each dimension
	Dispatch(x, y, z uint32)

	// Close finishes recording. A closed list can be submitted but not recorded to.
	//
	// Returns:
	//   - error: an error if the list was already closed or recording failed
	Close() error

	// Closed reports whether Close has been called.
	//
	// Returns:
	//   - bool: true once the list has been closed
	Closed() bool
}

// CommandQueue is a GPU-side FIFO that executes submitted command lists in submission order.
type CommandQueue interface {
	// Kind returns the queue family this queue feeds.
	//
	// Returns:
	//   - QueueKind: the queue kind
	Kind() QueueKind

	// Submit places closed command lists on the queue for execution. Lists execute in the order
	// given, after all previously submitted work on this queue.
	//
	// Parameters:
	//   - lists: the closed command lists to execute
	//
	// Returns:
	//   - error: an error if any list is not closed or the backend rejects the submission
	Submit(lists ...CommandList) error

	// Signal enqueues a fence signal that fires once all previously submitted work completes.
	//
	// Parameters:
	//   - fence: the fence to signal
	//   - value: the value to signal it to
	//
	// Returns:
	//   - error: an error if the signal could not be enqueued
	Signal(fence Fence, value uint64) error

	// Wait enqueues a GPU-side wait: subsequently submitted work does not begin until the fence
	// reaches the given value. Used for cross-queue edges.
	//
	// Parameters:
	//   - fence: the fence to wait on
	//   - value: the value to wait for
	//
	// Returns:
	//   - error: an error if the wait could not be enqueued
	Wait(fence Fence, value uint64) error
}

// DescriptorHandle addresses a contiguous run of descriptor slots inside a heap.
type DescriptorHandle struct {
	// Index is the first slot of the run.
	Index int
	// Count is the number of slots in the run.
	Count int
}

// DescriptorHeap hands out transient descriptor slots. Tasks allocate slots during Setup and the
// scheduler frees them once the frame's fence completes.
type DescriptorHeap interface {
	// Allocate reserves a contiguous run of descriptor slots.
	//
	// Parameters:
	//   - count: the number of slots to reserve
	//
	// Returns:
	//   - DescriptorHandle: the reserved run
	//   - error: an error if the heap is exhausted
	Allocate(count int) (DescriptorHandle, error)

	// Free releases a run previously returned by Allocate.
	//
	// Parameters:
	//   - handle: the run to release
	Free(handle DescriptorHandle)
}
