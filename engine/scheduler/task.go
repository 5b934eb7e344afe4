package scheduler

import (
	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// Task is a single graphics task in a render pipeline. The scheduler treats tasks as opaque:
// all it knows about one is the usage list its Setup declares and the command list its Execute
// records.
//
// Setup runs first, for every task in the frame, in parallel on the worker pool. It may query
// scene data, allocate transient descriptor slots and constant ranges, and must declare every
// resource Execute will touch. Setup must be pure with respect to the GPU: no command recording
// and no global resource mutation beyond transient allocations.
//
// Execute runs once Setup of all tasks has finished, possibly in parallel with other tasks the
// compatibility oracle admits. It records exactly one command list through the RenderContext.
type Task interface {
	// Name returns the task's identifier, used in schedules, logs, and errors.
	//
	// Returns:
	//   - string: the task name
	Name() string

	// Setup declares the task's resource usages and acquires transient allocations for the
	// current frame.
	//
	// Parameters:
	//   - ctx: the setup context collecting usage declarations and transient allocations
	//
	// Returns:
	//   - error: an error to abort the frame
	Setup(ctx *SetupContext) error

	// Execute records the task's command list for the current frame.
	//
	// Parameters:
	//   - ctx: the render context wrapping the task's command list and scratch space
	//
	// Returns:
	//   - error: an error to abort the frame
	Execute(ctx *RenderContext) error
}

// FrameInitializer is an optional Task capability: Init runs on the orchestrating goroutine
// immediately before the task's command list is submitted to its queue.
type FrameInitializer interface {
	// Init performs CPU-side work that must precede GPU submission of this task's list.
	Init()
}

// FrameFinalizer is an optional Task capability: Cleanup runs once the frame's fence reports
// that the task's GPU work completed, at the top of a later frame.
type FrameFinalizer interface {
	// Cleanup releases per-frame acquisitions that had to outlive GPU execution.
	Cleanup()
}

// ResourceReleaser is an optional Task capability: ReleaseResources drops cached GPU-facing
// allocations the task holds between frames. Called by Scheduler.ReleaseResources only;
// replacing the pipeline with SetPipeline or removing it with ReleasePipeline does not call it.
type ResourceReleaser interface {
	// ReleaseResources drops every cached GPU-facing allocation held by the task.
	ReleaseResources()
}

// SetupContext collects a task's frame declarations during Setup. Each task receives its own
// context, so Setup bodies never contend with each other.
type SetupContext struct {
	// Frame is the per-frame input the engine passed to Execute.
	Frame *FrameContext

	usages      []UsageRecord
	descriptors []gpu.DescriptorHandle
	scratch     *ScratchSpace
}

// Use declares that Execute will touch a resource (or one subresource of it).
//
// Parameters:
//   - r: the resource
//   - subresource: a subresource index, or common.AllSubresources
//   - first: the state a preceding barrier must establish
//   - last: the state the task leaves the resource in
//   - multipleUse: true when the task uses the resource in more than one state, or writes it
func (c *SetupContext) Use(r gpu.Resource, subresource int, first, last common.ResourceState, multipleUse bool) {
	c.usages = append(c.usages, UsageRecord{
		Resource:    r,
		Subresource: subresource,
		FirstState:  first,
		LastState:   last,
		MultipleUse: multipleUse,
	})
}

// UseRecord appends a fully specified usage record. Equivalent to Use with the record's fields.
//
// Parameters:
//   - u: the record to append
func (c *SetupContext) UseRecord(u UsageRecord) {
	c.usages = append(c.usages, u)
}

// AllocateDescriptors reserves transient descriptor slots from the frame's heap. The slots are
// freed automatically once the frame's fence completes.
//
// Parameters:
//   - count: the number of contiguous slots
//
// Returns:
//   - gpu.DescriptorHandle: the reserved run
//   - error: an error if the heap is exhausted
func (c *SetupContext) AllocateDescriptors(count int) (gpu.DescriptorHandle, error) {
	handle, err := c.Frame.DescriptorHeap.Allocate(count)
	if err != nil {
		return gpu.DescriptorHandle{}, err
	}
	c.descriptors = append(c.descriptors, handle)
	return handle, nil
}

// AllocateConstants reserves a transient constant-buffer range from the task's scratch space.
// The range is valid until the frame's fence completes.
//
// Parameters:
//   - size: the number of bytes to reserve
//
// Returns:
//   - ConstantRange: the reserved range
//   - error: an error if the scratch space is exhausted
func (c *SetupContext) AllocateConstants(size uint64) (ConstantRange, error) {
	return c.scratch.Allocate(size)
}

// RenderContext wraps the single command list a task records during Execute, together with the
// task's scratch space and the frame inputs.
type RenderContext struct {
	// Frame is the per-frame input the engine passed to Execute.
	Frame *FrameContext

	list     gpu.CommandList
	scratch  *ScratchSpace
	declared map[stateKey]common.ResourceState
}

func newRenderContext(frame *FrameContext, list gpu.CommandList, scratch *ScratchSpace) *RenderContext {
	return &RenderContext{
		Frame:    frame,
		list:     list,
		scratch:  scratch,
		declared: make(map[stateKey]common.ResourceState),
	}
}

// CommandList returns the command list the task records into.
//
// Returns:
//   - gpu.CommandList: the task's command list
func (c *RenderContext) CommandList() gpu.CommandList {
	return c.list
}

// Scratch returns the task's scratch space for transient constant data.
//
// Returns:
//   - *ScratchSpace: the scratch space
func (c *RenderContext) Scratch() *ScratchSpace {
	return c.scratch
}

// SetResourceState declares or transitions the state of a resource on this command list. The
// first call per (resource, subresource) does not record a barrier: it only declares the state
// the scheduler must establish before the list runs, and must match the FirstState declared in
// Setup. Every subsequent call records a real transition barrier inside the list, from the
// previously declared state to the new one. Redundant calls (same state again) record nothing.
//
// Parameters:
//   - r: the resource
//   - subresource: a subresource index, or common.AllSubresources
//   - state: the state the following commands need
func (c *RenderContext) SetResourceState(r gpu.Resource, subresource int, state common.ResourceState) {
	if subresource == common.AllSubresources {
		for k := 0; k < r.SubresourceCount(); k++ {
			c.setSubresourceState(r, k, state)
		}
		return
	}
	c.setSubresourceState(r, subresource, state)
}

func (c *RenderContext) setSubresourceState(r gpu.Resource, subresource int, state common.ResourceState) {
	key := stateKey{resource: r.ID(), subresource: subresource}
	prev, seen := c.declared[key]
	if !seen {
		c.declared[key] = state
		return
	}
	if prev == state {
		return
	}
	c.list.ResourceBarrier(gpu.Barrier{
		Resource:    r,
		Subresource: subresource,
		From:        prev,
		To:          state,
	})
	c.declared[key] = state
}
