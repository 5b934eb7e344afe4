package scheduler

import (
	"fmt"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// NodeID identifies a task inside a Pipeline. IDs are assigned densely in insertion order and
// double as the deterministic tie-breaker in the schedule builder.
type NodeID int

// Pipeline is an owned directed acyclic graph of graphics tasks. Nodes are tasks; an edge from
// A to B expresses "B must start after A completes on the GPU". Pipelines are built once,
// validated at SetPipeline time, and owned exclusively by the scheduler while a frame runs.
type Pipeline struct {
	tasks  []Task
	queues []gpu.QueueKind
	edges  [][2]NodeID
}

// NewPipeline creates an empty pipeline.
//
// Returns:
//   - *Pipeline: the new pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddTask appends a task to the pipeline on the graphics queue.
//
// Parameters:
//   - t: the task to add
//
// Returns:
//   - NodeID: the identity of the new node
func (p *Pipeline) AddTask(t Task) NodeID {
	return p.AddTaskOnQueue(t, gpu.QueueKindGraphics)
}

// AddTaskOnQueue appends a task with a preferred command queue. Tasks preferring a queue the
// frame does not provide fall back to the graphics queue at submission time.
//
// Parameters:
//   - t: the task to add
//   - queue: the preferred queue kind for the task's command list
//
// Returns:
//   - NodeID: the identity of the new node
func (p *Pipeline) AddTaskOnQueue(t Task, queue gpu.QueueKind) NodeID {
	id := NodeID(len(p.tasks))
	p.tasks = append(p.tasks, t)
	p.queues = append(p.queues, queue)
	return id
}

// AddDependency records that the task identified by to must start after the task identified by
// from completes on the GPU. Edges referencing unknown nodes are caught by Validate, not here,
// so pipelines can be assembled in any order.
//
// Parameters:
//   - from: the producing node
//   - to: the consuming node
func (p *Pipeline) AddDependency(from, to NodeID) {
	p.edges = append(p.edges, [2]NodeID{from, to})
}

// TaskCount returns the number of tasks in the pipeline.
//
// Returns:
//   - int: the task count
func (p *Pipeline) TaskCount() int {
	return len(p.tasks)
}

// Task returns the task at the given node.
//
// Parameters:
//   - id: the node identity
//
// Returns:
//   - Task: the task, or nil if the node does not exist
func (p *Pipeline) Task(id NodeID) Task {
	if int(id) < 0 || int(id) >= len(p.tasks) {
		return nil
	}
	return p.tasks[id]
}

// Queue returns the preferred queue kind of the given node.
//
// Parameters:
//   - id: the node identity
//
// Returns:
//   - gpu.QueueKind: the node's preferred queue
func (p *Pipeline) Queue(id NodeID) gpu.QueueKind {
	if int(id) < 0 || int(id) >= len(p.queues) {
		return gpu.QueueKindGraphics
	}
	return p.queues[id]
}

// Edges returns the pipeline's dependency edges.
//
// Returns:
//   - [][2]NodeID: (from, to) pairs in insertion order
func (p *Pipeline) Edges() [][2]NodeID {
	return p.edges
}

// Validate checks that every edge references existing nodes and that the graph is acyclic.
// Cycle detection runs Kahn's algorithm: if the peel-off cannot consume every node, the
// remainder forms at least one cycle.
//
// Returns:
//   - error: nil for a valid DAG, otherwise an error wrapping ErrPipelineInvalid
func (p *Pipeline) Validate() error {
	n := len(p.tasks)
	inDegree := make([]int, n)
	adjacency := make([][]NodeID, n)
	for _, e := range p.edges {
		from, to := e[0], e[1]
		if int(from) < 0 || int(from) >= n || int(to) < 0 || int(to) >= n {
			return fmt.Errorf("%w: edge (%d -> %d) references a missing node", ErrPipelineInvalid, from, to)
		}
		if from == to {
			return fmt.Errorf("%w: node %d depends on itself", ErrPipelineInvalid, from)
		}
		adjacency[from] = append(adjacency[from], to)
		inDegree[to]++
	}

	ready := make([]NodeID, 0, n)
	for id := 0; id < n; id++ {
		if inDegree[id] == 0 {
			ready = append(ready, NodeID(id))
		}
	}
	visited := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if visited != n {
		return fmt.Errorf("%w: %d of %d tasks are on a dependency cycle", ErrPipelineInvalid, n-visited, n)
	}
	return nil
}

// predecessors builds the reverse adjacency of the pipeline: for each node, the list of nodes
// that must complete before it.
func (p *Pipeline) predecessors() [][]NodeID {
	preds := make([][]NodeID, len(p.tasks))
	for _, e := range p.edges {
		preds[e[1]] = append(preds[e[1]], e[0])
	}
	return preds
}
