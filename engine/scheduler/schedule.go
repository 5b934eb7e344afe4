package scheduler

import (
	"sort"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// scheduledEntry is one slot of a built schedule: a pipeline node, its resolved queue kind, and
// whether it may share a barrier batch with the entry before it.
type scheduledEntry struct {
	node  NodeID
	queue gpu.QueueKind
	// compatibleWithPrev is true when this entry is parallel-compatible with the previous
	// entry, meaning no barrier batch is needed between their command lists.
	compatibleWithPrev bool
}

// buildSchedule linearizes the pipeline DAG into an order compatible with serial replay.
//
// The order is Kahn's topological sort with two refinements:
//   - Determinism: when several nodes are ready, ties break on the lowest NodeID, so the same
//     DAG shape always produces byte-identical schedules.
//   - Parallel clustering: before falling back to the lowest ID, the builder looks for the
//     lowest-ID ready node that is parallel-compatible with the previously emitted node.
//     Clustering compatible siblings lets the barrier injector elide batches between them and
//     the record pass overlap their Execute calls.
//
// usages returns the sorted usage list of a node; it must be safe to call repeatedly.
func buildSchedule(p *Pipeline, usages func(NodeID) []UsageRecord) []scheduledEntry {
	n := p.TaskCount()
	inDegree := make([]int, n)
	adjacency := make([][]NodeID, n)
	for _, e := range p.edges {
		adjacency[e[0]] = append(adjacency[e[0]], e[1])
		inDegree[e[1]]++
	}

	ready := make([]NodeID, 0, n)
	for id := 0; id < n; id++ {
		if inDegree[id] == 0 {
			ready = append(ready, NodeID(id))
		}
	}
	sortReady(ready)

	schedule := make([]scheduledEntry, 0, n)
	var prev NodeID = -1
	for len(ready) > 0 {
		pick := 0
		if prev >= 0 {
			prevUsages := usages(prev)
			for i, candidate := range ready {
				if usagesCompatible(usages(candidate), prevUsages) {
					pick = i
					break
				}
			}
		}
		id := ready[pick]
		ready = append(ready[:pick], ready[pick+1:]...)

		entry := scheduledEntry{node: id, queue: p.Queue(id)}
		if prev >= 0 {
			entry.compatibleWithPrev = usagesCompatible(usages(id), usages(prev))
		}
		schedule = append(schedule, entry)
		prev = id

		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}
	return schedule
}

// sortReady orders the ready set ascending by NodeID.
func sortReady(ready []NodeID) {
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
}

// insertSorted inserts id into an ascending slice, keeping it sorted.
func insertSorted(ready []NodeID, id NodeID) []NodeID {
	at := sort.Search(len(ready), func(i int) bool { return ready[i] >= id })
	ready = append(ready, 0)
	copy(ready[at+1:], ready[at:])
	ready[at] = id
	return ready
}
