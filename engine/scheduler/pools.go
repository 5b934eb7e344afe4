package scheduler

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// CommandAllocatorPool hands out command allocators for a frame and takes them back once the
// GPU is finished with them. The pool is arena-like: Acquire draws from a free list (creating
// on miss), Recycle parks an allocator with the fence value its lists will complete at, and
// Reclaim resets and frees every parked allocator whose fence value has completed.
type CommandAllocatorPool struct {
	mu      sync.Mutex
	factory func() gpu.CommandAllocator
	free    []gpu.CommandAllocator
	parked  []parkedAllocator
}

type parkedAllocator struct {
	allocator  gpu.CommandAllocator
	fenceValue uint64
}

// NewCommandAllocatorPool creates a pool that uses the given factory to create allocators on
// demand.
//
// Parameters:
//   - factory: creates a new backend command allocator
//
// Returns:
//   - *CommandAllocatorPool: the new pool
func NewCommandAllocatorPool(factory func() gpu.CommandAllocator) *CommandAllocatorPool {
	return &CommandAllocatorPool{factory: factory}
}

// Acquire returns a reset allocator, creating one if the free list is empty.
//
// Returns:
//   - gpu.CommandAllocator: an allocator ready for recording
func (p *CommandAllocatorPool) Acquire() gpu.CommandAllocator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		a := p.free[n-1]
		p.free = p.free[:n-1]
		return a
	}
	return p.factory()
}

// Recycle parks an allocator until the given fence value completes.
//
// Parameters:
//   - a: the allocator whose lists were submitted
//   - fenceValue: the fence value signaled after those lists
func (p *CommandAllocatorPool) Recycle(a gpu.CommandAllocator, fenceValue uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked = append(p.parked, parkedAllocator{allocator: a, fenceValue: fenceValue})
}

// Return puts an allocator straight back on the free list after resetting it. Used for
// allocators whose lists were never submitted (an aborted frame).
//
// Parameters:
//   - a: the allocator to return
//
// Returns:
//   - error: an error if the backend refuses the reset
func (p *CommandAllocatorPool) Return(a gpu.CommandAllocator) error {
	if err := a.Reset(); err != nil {
		return fmt.Errorf("returning unsubmitted allocator: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, a)
	return nil
}

// Reclaim resets and frees every parked allocator whose fence value is at or below the fence's
// completed value. Called at the top of each frame.
//
// Parameters:
//   - completedValue: the fence's completed value
//
// Returns:
//   - error: the first reset error encountered, if any
func (p *CommandAllocatorPool) Reclaim(completedValue uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.parked[:0]
	var firstErr error
	for _, parked := range p.parked {
		if parked.fenceValue > completedValue {
			remaining = append(remaining, parked)
			continue
		}
		if err := parked.allocator.Reset(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			remaining = append(remaining, parked)
			continue
		}
		p.free = append(p.free, parked.allocator)
	}
	p.parked = remaining
	return firstErr
}

// ReleaseAll drops every pooled allocator, free and parked alike. Callers must ensure no GPU
// work references them.
func (p *CommandAllocatorPool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.parked = nil
}

// ConstantRange is a transient constant-buffer range inside a scratch space. The memory behind
// Bytes is valid until the owning frame's fence completes.
type ConstantRange struct {
	// Offset is the byte offset of the range inside its scratch space.
	Offset uint64
	// Size is the length of the range in bytes.
	Size uint64
	// Bytes is the CPU-visible window for filling the range.
	Bytes []byte
}

// ScratchSpace is per-frame transient memory for constants and small buffers. Allocation is a
// bump pointer with 256-byte alignment (the constant-buffer alignment granularity of the
// explicit APIs); the whole space is recycled at once when the frame's fence completes.
type ScratchSpace struct {
	buf    []byte
	offset uint64
}

// scratchAlignment is the constant-buffer offset alignment required by the underlying APIs.
const scratchAlignment = 256

// NewScratchSpace creates a scratch space with the given capacity in bytes.
//
// Parameters:
//   - capacity: the total number of bytes available per frame
//
// Returns:
//   - *ScratchSpace: the new scratch space
func NewScratchSpace(capacity uint64) *ScratchSpace {
	return &ScratchSpace{buf: make([]byte, capacity)}
}

// Allocate bump-allocates an aligned constant range.
//
// Parameters:
//   - size: the number of bytes requested
//
// Returns:
//   - ConstantRange: the reserved range
//   - error: an error if the space is exhausted
func (s *ScratchSpace) Allocate(size uint64) (ConstantRange, error) {
	aligned := (s.offset + scratchAlignment - 1) &^ uint64(scratchAlignment-1)
	if aligned+size > uint64(len(s.buf)) {
		return ConstantRange{}, fmt.Errorf("scratch space exhausted: %d bytes requested, %d free", size, uint64(len(s.buf))-aligned)
	}
	r := ConstantRange{Offset: aligned, Size: size, Bytes: s.buf[aligned : aligned+size]}
	s.offset = aligned + size
	return r, nil
}

// Reset rewinds the bump pointer, invalidating every range handed out since the last reset.
func (s *ScratchSpace) Reset() {
	s.offset = 0
}

// ScratchSpacePool hands out scratch spaces with the same acquire/recycle/reclaim lifecycle as
// CommandAllocatorPool. Each recording task owns one scratch space for the duration of one
// Execute.
type ScratchSpacePool struct {
	mu       sync.Mutex
	capacity uint64
	free     []*ScratchSpace
	parked   []parkedScratch
}

type parkedScratch struct {
	scratch    *ScratchSpace
	fenceValue uint64
}

// NewScratchSpacePool creates a pool producing scratch spaces of the given per-space capacity.
//
// Parameters:
//   - capacity: bytes per scratch space
//
// Returns:
//   - *ScratchSpacePool: the new pool
func NewScratchSpacePool(capacity uint64) *ScratchSpacePool {
	return &ScratchSpacePool{capacity: capacity}
}

// Acquire returns a reset scratch space, creating one if the free list is empty.
//
// Returns:
//   - *ScratchSpace: a scratch space ready for use
func (p *ScratchSpacePool) Acquire() *ScratchSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s
	}
	return NewScratchSpace(p.capacity)
}

// Recycle parks a scratch space until the given fence value completes.
//
// Parameters:
//   - s: the scratch space the frame used
//   - fenceValue: the fence value signaled after the frame's lists
func (p *ScratchSpacePool) Recycle(s *ScratchSpace, fenceValue uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked = append(p.parked, parkedScratch{scratch: s, fenceValue: fenceValue})
}

// Return puts a scratch space straight back on the free list. Used when the frame aborted
// before submission.
//
// Parameters:
//   - s: the scratch space to return
func (p *ScratchSpacePool) Return(s *ScratchSpace) {
	s.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, s)
}

// Reclaim resets and frees every parked scratch space whose fence value has completed.
//
// Parameters:
//   - completedValue: the fence's completed value
func (p *ScratchSpacePool) Reclaim(completedValue uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.parked[:0]
	for _, parked := range p.parked {
		if parked.fenceValue > completedValue {
			remaining = append(remaining, parked)
			continue
		}
		parked.scratch.Reset()
		p.free = append(p.free, parked.scratch)
	}
	p.parked = remaining
}

// ReleaseAll drops every pooled scratch space.
func (p *ScratchSpacePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.parked = nil
}
