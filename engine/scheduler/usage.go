package scheduler

import (
	"sort"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// UsageRecord declares a task's use of one resource (or one of its subresources) for a frame.
// Tasks append records during Setup; the scheduler derives all cross-task synchronization from
// them before any recording begins.
type UsageRecord struct {
	// Resource is the resource being used.
	Resource gpu.Resource
	// Subresource is the subresource index the usage applies to, or common.AllSubresources.
	Subresource int
	// FirstState is the state a preceding barrier must establish before the task's command
	// list runs.
	FirstState common.ResourceState
	// LastState is the state the resource is left in when the task's command list finishes.
	LastState common.ResourceState
	// MultipleUse is true when the task uses the resource in more than one distinct state
	// internally, or writes it. A MultipleUse record disqualifies the task from recording in
	// parallel with any other user of the same resource.
	MultipleUse bool
}

// sortUsages orders a usage list by resource identity then subresource index. The
// parallel-compatibility merge walk and barrier grouping both require this order; Setup sorts
// each task's list exactly once, before the schedule is built.
func sortUsages(usages []UsageRecord) {
	sort.SliceStable(usages, func(i, j int) bool {
		a, b := usages[i], usages[j]
		if a.Resource.ID() != b.Resource.ID() {
			return a.Resource.ID() < b.Resource.ID()
		}
		return a.Subresource < b.Subresource
	})
}

// stateKey addresses one subresource of one resource in the state table and in per-list
// declared-state tracking.
type stateKey struct {
	resource    uint64
	subresource int
}

// expandSubresources calls fn for every concrete subresource index a record covers: the single
// index for a specific selector, or every index of the resource for AllSubresources.
func expandSubresources(u UsageRecord, fn func(index int)) {
	if u.Subresource == common.AllSubresources {
		for k := 0; k < u.Resource.SubresourceCount(); k++ {
			fn(k)
		}
		return
	}
	fn(u.Subresource)
}
