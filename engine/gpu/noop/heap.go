package noop

import (
	"sync"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// DescriptorHeap implements gpu.DescriptorHeap with a bump allocator and a coarse free counter.
// Slots are only reusable once every allocation has been freed, which matches the transient
// per-frame usage pattern the scheduler drives it with.
type DescriptorHeap struct {
	mu       sync.Mutex
	capacity int
	next     int
	live     int
}

var _ gpu.DescriptorHeap = &DescriptorHeap{}

// NewDescriptorHeap creates a noop descriptor heap with the given slot capacity.
//
// Parameters:
//   - capacity: the total number of descriptor slots
//
// Returns:
//   - *DescriptorHeap: the new heap
func NewDescriptorHeap(capacity int) *DescriptorHeap {
	return &DescriptorHeap{capacity: capacity}
}

func (h *DescriptorHeap) Allocate(count int) (gpu.DescriptorHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next+count > h.capacity {
		return gpu.DescriptorHandle{}, gpu.ErrHeapExhausted
	}
	handle := gpu.DescriptorHandle{Index: h.next, Count: count}
	h.next += count
	h.live += count
	return handle, nil
}

func (h *DescriptorHeap) Free(handle gpu.DescriptorHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live -= handle.Count
	// The bump pointer rewinds only once everything is back, trading fragmentation handling
	// for allocation speed. Transient frame allocations free together, so this is enough.
	if h.live <= 0 {
		h.live = 0
		h.next = 0
	}
}

// Live returns the number of currently allocated slots.
//
// Returns:
//   - int: slots allocated and not yet freed
func (h *DescriptorHeap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}
