package scheduler

import (
	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// ResourceStateTable is the CPU-side shadow of every tracked resource's state, per subresource.
// It reflects the state the GPU will observe once all currently recorded (but not necessarily
// executed) command lists finish, so it advances with CPU recording, never with GPU execution.
// The table is exclusive to the scheduler's orchestrating goroutine and is only mutated during
// the assemble pass, in schedule order.
type ResourceStateTable struct {
	states map[stateKey]common.ResourceState
}

// NewResourceStateTable creates an empty state table.
//
// Returns:
//   - *ResourceStateTable: the new table
func NewResourceStateTable() *ResourceStateTable {
	return &ResourceStateTable{states: make(map[stateKey]common.ResourceState)}
}

// Get looks up the recorded state of one subresource.
//
// Parameters:
//   - r: the resource
//   - subresource: the concrete subresource index (never AllSubresources)
//
// Returns:
//   - common.ResourceState: the recorded state, or the zero state when unknown
//   - bool: true if the subresource has a recorded state
func (t *ResourceStateTable) Get(r gpu.Resource, subresource int) (common.ResourceState, bool) {
	s, ok := t.states[stateKey{resource: r.ID(), subresource: subresource}]
	return s, ok
}

// Set records the state of one subresource, overwriting any previous entry.
//
// Parameters:
//   - r: the resource
//   - subresource: the concrete subresource index (never AllSubresources)
//   - state: the state to record
func (t *ResourceStateTable) Set(r gpu.Resource, subresource int, state common.ResourceState) {
	t.states[stateKey{resource: r.ID(), subresource: subresource}] = state
}

// Track seeds the table with an initial state for every subresource of a resource. Callers use
// this when handing a freshly created resource to the scheduler so the first frame does not hit
// the unknown-state path.
//
// Parameters:
//   - r: the resource to start tracking
//   - state: the state the resource is currently in
func (t *ResourceStateTable) Track(r gpu.Resource, state common.ResourceState) {
	for k := 0; k < r.SubresourceCount(); k++ {
		t.Set(r, k, state)
	}
}

// Len returns the number of tracked (resource, subresource) entries.
//
// Returns:
//   - int: the entry count
func (t *ResourceStateTable) Len() int {
	return len(t.states)
}

// Snapshot copies the table's current contents. Taken at the top of every frame so a failing
// frame can be rolled back without leaking partial state advances.
//
// Returns:
//   - map[stateKey]common.ResourceState: an independent copy of the table
func (t *ResourceStateTable) Snapshot() map[stateKey]common.ResourceState {
	snap := make(map[stateKey]common.ResourceState, len(t.states))
	for k, v := range t.states {
		snap[k] = v
	}
	return snap
}

// Restore replaces the table's contents with a snapshot taken earlier.
//
// Parameters:
//   - snap: the snapshot to restore
func (t *ResourceStateTable) Restore(snap map[stateKey]common.ResourceState) {
	t.states = make(map[stateKey]common.ResourceState, len(snap))
	for k, v := range snap {
		t.states[k] = v
	}
}

// Clear drops every entry. Used by ReleaseResources before a swap-chain resize so stale
// back-buffer identities do not linger.
func (t *ResourceStateTable) Clear() {
	t.states = make(map[stateKey]common.ResourceState)
}
