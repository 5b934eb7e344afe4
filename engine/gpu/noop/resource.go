package noop

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// resourceIDs assigns unique identities to noop resources across the whole process.
var resourceIDs atomic.Uint64

// Resource implements gpu.Resource for the noop backend.
type Resource struct {
	id           uint64
	name         string
	subresources int
}

var _ gpu.Resource = &Resource{}

// NewResource creates a noop resource with the given debug name and subresource count.
// A subresource count below 1 is treated as 1.
//
// Parameters:
//   - name: the debug name for the resource
//   - subresources: the number of addressable subresources
//
// Returns:
//   - *Resource: the new resource
func NewResource(name string, subresources int) *Resource {
	if subresources < 1 {
		subresources = 1
	}
	return &Resource{
		id:           resourceIDs.Add(1),
		name:         name,
		subresources: subresources,
	}
}

func (r *Resource) ID() uint64            { return r.id }
func (r *Resource) Name() string          { return r.name }
func (r *Resource) SubresourceCount() int { return r.subresources }

// Fence implements gpu.Fence for the noop backend. Signals take effect immediately and wake
// any goroutines blocked in Wait.
type Fence struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

var _ gpu.Fence = &Fence{}

// NewFence creates a noop fence with a completed value of zero.
//
// Returns:
//   - *Fence: the new fence
func NewFence() *Fence {
	f := &Fence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Fence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Fences are monotonic: signaling backwards is a no-op.
	if value > f.value {
		f.value = value
		f.cond.Broadcast()
	}
	return nil
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value {
		f.cond.Wait()
	}
	return nil
}
