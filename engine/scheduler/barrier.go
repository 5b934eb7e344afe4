package scheduler

import (
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// barrierInjector derives the minimum transition batch a task (or a run of parallel-compatible
// tasks) needs, given the current state table. Injection and table advancement are separate
// steps: the batch for a whole compatible run is computed against the table as it stood on
// entry, and only then does the table advance to each task's LastState in schedule order.
type barrierInjector struct {
	table *ResourceStateTable
}

// inject computes the transition batch for the given usage lists, in order, deduplicating by
// (resource, subresource). Only real transitions are emitted: a subresource already in the
// required FirstState produces nothing, so a from == to barrier never exists. A usage for a subresource
// the table has never seen is treated as if the current state already equals FirstState; the
// assumption is recorded in the table and a warning is surfaced, since a wrong guess here means
// the pipeline author forgot to Track a resource.
func (b *barrierInjector) inject(usageLists ...[]UsageRecord) []gpu.Barrier {
	var batch []gpu.Barrier
	seen := make(map[stateKey]bool)
	for _, usages := range usageLists {
		for _, u := range usages {
			expandSubresources(u, func(k int) {
				key := stateKey{resource: u.Resource.ID(), subresource: k}
				if seen[key] {
					return
				}
				seen[key] = true

				current, known := b.table.Get(u.Resource, k)
				if !known {
					gpu.Logger().Warn("resource state unknown, assuming declared first state",
						"resource", u.Resource.Name(),
						"subresource", k,
						"state", u.FirstState.String(),
					)
					b.table.Set(u.Resource, k, u.FirstState)
					return
				}
				if current == u.FirstState {
					return
				}
				batch = append(batch, gpu.Barrier{
					Resource:    u.Resource,
					Subresource: k,
					From:        current,
					To:          u.FirstState,
				})
			})
		}
	}
	return batch
}

// advance moves the table to each usage's LastState. Called once per task, in schedule order,
// after the task's command list has been appended to the submission stream.
func (b *barrierInjector) advance(usages []UsageRecord) {
	for _, u := range usages {
		expandSubresources(u, func(k int) {
			b.table.Set(u.Resource, k, u.LastState)
		})
	}
}
