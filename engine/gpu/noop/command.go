package noop

import (
	"sync"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// OpKind identifies a recorded command.
type OpKind int

const (
	// OpBarrier is a ResourceBarrier batch.
	OpBarrier OpKind = iota
	// OpClear is a ClearRenderTarget command.
	OpClear
	// OpCopyResource is a full-resource copy.
	OpCopyResource
	// OpCopyBufferRegion is a ranged buffer copy.
	OpCopyBufferRegion
	// OpDraw is a draw command.
	OpDraw
	// OpDispatch is a compute dispatch.
	OpDispatch
)

// Op is a single recorded command, retained so tests and tools can inspect exactly what a
// command list contains.
type Op struct {
	// Kind identifies the command.
	Kind OpKind
	// Barriers holds the transition batch for OpBarrier ops.
	Barriers []gpu.Barrier
	// Target is the cleared resource for OpClear ops.
	Target gpu.Resource
	// Color is the clear color for OpClear ops.
	Color common.Color
	// Src and Dst are the copy endpoints for copy ops.
	Src, Dst gpu.Resource
	// SrcOffset, DstOffset, and Size describe the range for OpCopyBufferRegion ops.
	SrcOffset, DstOffset, Size uint64
	// Counts holds vertex/instance counts for OpDraw and workgroup counts for OpDispatch.
	Counts [3]uint32
}

// CommandAllocator implements gpu.CommandAllocator for the noop backend.
type CommandAllocator struct {
	mu    sync.Mutex
	lists []*CommandList
}

var _ gpu.CommandAllocator = &CommandAllocator{}

// NewCommandAllocator creates an empty noop command allocator.
//
// Returns:
//   - *CommandAllocator: the new allocator
func NewCommandAllocator() *CommandAllocator {
	return &CommandAllocator{}
}

// Reset reclaims every command list recorded from this allocator. The noop backend executes
// submissions instantly, so Reset never observes in-flight lists and always succeeds.
func (a *CommandAllocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists = a.lists[:0]
	return nil
}

// NewCommandList creates a new recording command list backed by this allocator.
func (a *CommandAllocator) NewCommandList() (gpu.CommandList, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := &CommandList{}
	a.lists = append(a.lists, l)
	return l, nil
}

// CommandList implements gpu.CommandList for the noop backend, retaining every recorded
// command for later inspection.
type CommandList struct {
	mu     sync.Mutex
	ops    []Op
	closed bool
}

var _ gpu.CommandList = &CommandList{}

// Ops returns the commands recorded on this list, in recording order.
//
// Returns:
//   - []Op: the recorded commands
func (l *CommandList) Ops() []Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Op, len(l.ops))
	copy(out, l.ops)
	return out
}

func (l *CommandList) record(op Op) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.ops = append(l.ops, op)
}

func (l *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	if len(barriers) == 0 {
		return
	}
	batch := make([]gpu.Barrier, len(barriers))
	copy(batch, barriers)
	l.record(Op{Kind: OpBarrier, Barriers: batch})
}

func (l *CommandList) ClearRenderTarget(target gpu.Resource, color common.Color) {
	l.record(Op{Kind: OpClear, Target: target, Color: color})
}

func (l *CommandList) CopyResource(src, dst gpu.Resource) {
	l.record(Op{Kind: OpCopyResource, Src: src, Dst: dst})
}

func (l *CommandList) CopyBufferRegion(src gpu.Resource, srcOffset uint64, dst gpu.Resource, dstOffset, size uint64) {
	l.record(Op{Kind: OpCopyBufferRegion, Src: src, SrcOffset: srcOffset, Dst: dst, DstOffset: dstOffset, Size: size})
}

func (l *CommandList) Draw(vertexCount, instanceCount uint32) {
	l.record(Op{Kind: OpDraw, Counts: [3]uint32{vertexCount, instanceCount, 0}})
}

func (l *CommandList) Dispatch(x, y, z uint32) {
	l.record(Op{Kind: OpDispatch, Counts: [3]uint32{x, y, z}})
}

func (l *CommandList) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return gpu.ErrListClosed
	}
	l.closed = true
	return nil
}

func (l *CommandList) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
