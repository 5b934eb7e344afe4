// Package scheduler turns a declarative render pipeline (a DAG of graphics tasks) into a
// correctly ordered, correctly synchronized stream of GPU command lists with the minimum
// necessary resource-state transitions. Task Setup runs in parallel on a worker pool, command
// recording overlaps wherever the parallel-compatibility oracle allows, and transition barriers
// are batched globally before each task's list.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
	"github.com/Carmen-Shannon/forge-go/engine/profiler"
)

// FrameStats summarizes what one Execute call did. Returned alongside the frame error and fed
// to the profiler when profiling is enabled.
type FrameStats struct {
	// TasksExecuted is the number of task command lists recorded, including the implicit
	// upload task.
	TasksExecuted int
	// BarriersEmitted is the number of transition barriers injected between command lists.
	// Barriers tasks record internally via SetResourceState are not counted.
	BarriersEmitted int
	// BarrierBatches is the number of barrier batches injected. Parallel-compatible runs share
	// one batch.
	BarrierBatches int
	// ParallelRuns is the number of scheduled runs containing more than one task submitted
	// without an intervening barrier batch.
	ParallelRuns int
	// UploadsStaged is the number of upload descriptions the implicit upload task performed.
	UploadsStaged int
	// FenceValue is the fence value signaled once every command list of this frame completes
	// on the GPU. Callers can wait on it before resizing or tearing down.
	FenceValue uint64
}

// Scheduler owns a render pipeline and executes it once per frame. All methods are safe for
// concurrent use, but only one frame can be in flight at a time; lifecycle operations issued
// while a frame runs fail with ErrPipelineBusy.
type Scheduler interface {
	// SetPipeline validates and installs a pipeline, replacing any previous one. The scheduler
	// has exclusive access to the pipeline until ReleasePipeline.
	//
	// Parameters:
	//   - p: the pipeline to install
	//
	// Returns:
	//   - error: ErrPipelineInvalid if the DAG has a cycle or dangling edge, ErrPipelineBusy
	//     if a frame is in flight
	SetPipeline(p *Pipeline) error

	// GetPipeline returns the installed pipeline for read-only inspection, or nil.
	//
	// Returns:
	//   - *Pipeline: the installed pipeline
	GetPipeline() *Pipeline

	// ReleasePipeline removes and returns the installed pipeline, leaving the scheduler empty.
	//
	// Returns:
	//   - *Pipeline: the removed pipeline, or nil if none was set
	//   - error: ErrPipelineBusy if a frame is in flight
	ReleasePipeline() (*Pipeline, error)

	// Execute runs one frame: parallel Setup, schedule build, guarded parallel recording,
	// barrier injection, and submission. On failure the frame is aborted, the state table is
	// rolled back, and a failure screen is rendered in its place.
	//
	// Parameters:
	//   - frame: the per-frame inputs from the engine
	//
	// Returns:
	//   - FrameStats: counters describing the executed frame
	//   - error: nil on success, otherwise the frame's failure wrapped around one of the
	//     scheduler error kinds
	Execute(frame *FrameContext) (FrameStats, error)

	// TrackResource seeds the resource state table with the current state of a resource, for
	// every subresource. Call once when handing a new resource to the pipeline; untracked
	// resources hit the unknown-state warning path on first use.
	//
	// Parameters:
	//   - r: the resource to track
	//   - state: the state the resource is currently in
	TrackResource(r gpu.Resource, state common.ResourceState)

	// ReleaseResources drops every per-task transient reference and every cached GPU-facing
	// allocation, and clears the state table. Used before a swap-chain resize so old back
	// buffers can be freed. The caller must ensure the GPU is idle.
	//
	// Returns:
	//   - error: ErrPipelineBusy if a frame is in flight
	ReleaseResources() error
}

// scheduler is the implementation of the Scheduler interface.
type scheduler struct {
	mu              sync.Mutex
	pipeline        *Pipeline
	pipelineInvalid bool

	table *ResourceStateTable

	// recordPool manages a bounded set of reusable goroutines for the parallel Setup and
	// Record passes. Workers are reused across frames (no goroutine spawn overhead); per-frame
	// barrier sync uses WaitGroups and completion channels since pool.Wait() blocks until
	// workers idle-exit, which is unsuitable for frame-rate workloads.
	recordPool    worker.DynamicWorkerPool
	workerTaskIDs atomic.Int64

	workerCount       int
	maxParallelRecord int
	failureColor      common.Color

	profilingEnabled bool
	profiler         *profiler.Profiler

	frameBusy   atomic.Bool
	fenceCursor uint64

	// lastAllocators and lastScratch remember the most recent frame's pools so
	// ReleaseResources can drop their cached allocations before a swap-chain resize.
	lastAllocators *CommandAllocatorPool
	lastScratch    *ScratchSpacePool

	cleanupMu sync.Mutex
	cleanups  []cleanupEntry
}

type cleanupEntry struct {
	fenceValue uint64
	fn         func()
}

var _ Scheduler = &scheduler{}

// NewScheduler creates a frame scheduler with the given options. Defaults: one worker per
// logical CPU, max parallel recording equal to the worker count, magenta failure color,
// profiling disabled.
//
// Parameters:
//   - options: variadic list of SchedulerBuilderOption functions to configure the scheduler
//
// Returns:
//   - Scheduler: the new scheduler
func NewScheduler(options ...SchedulerBuilderOption) Scheduler {
	s := &scheduler{
		table:        NewResourceStateTable(),
		failureColor: common.ColorFailureMagenta,
	}
	for _, opt := range options {
		opt(s)
	}
	s.workerCount = common.Coalesce(s.workerCount, defaultWorkerCount())
	s.maxParallelRecord = common.Coalesce(s.maxParallelRecord, s.workerCount)
	s.recordPool = worker.NewDynamicWorkerPool(s.workerCount, 256, 1*time.Second)
	if s.profilingEnabled {
		s.profiler = profiler.NewProfiler()
	}
	return s
}

func (s *scheduler) SetPipeline(p *Pipeline) error {
	if s.frameBusy.Load() {
		return ErrPipelineBusy
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = p
	s.pipelineInvalid = false
	return nil
}

func (s *scheduler) GetPipeline() *Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

func (s *scheduler) ReleasePipeline() (*Pipeline, error) {
	if s.frameBusy.Load() {
		return nil, ErrPipelineBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pipeline
	s.pipeline = nil
	return p, nil
}

func (s *scheduler) TrackResource(r gpu.Resource, state common.ResourceState) {
	s.table.Track(r, state)
}

func (s *scheduler) ReleaseResources() error {
	if s.frameBusy.Load() {
		return ErrPipelineBusy
	}
	// The caller guarantees GPU idleness, so every deferred cleanup can run now.
	s.cleanupMu.Lock()
	pending := s.cleanups
	s.cleanups = nil
	s.cleanupMu.Unlock()
	for _, c := range pending {
		c.fn()
	}

	s.mu.Lock()
	p := s.pipeline
	allocators, scratch := s.lastAllocators, s.lastScratch
	s.lastAllocators, s.lastScratch = nil, nil
	s.mu.Unlock()

	if p != nil {
		for id := 0; id < p.TaskCount(); id++ {
			if releaser, ok := p.Task(NodeID(id)).(ResourceReleaser); ok {
				releaser.ReleaseResources()
			}
		}
	}
	if allocators != nil {
		allocators.ReleaseAll()
	}
	if scratch != nil {
		scratch.ReleaseAll()
	}
	s.table.Clear()
	return nil
}

// frameNode is the scheduler's per-frame bookkeeping for one task: its declared usages, the
// transient allocations backing its recording, and the recorded command list.
type frameNode struct {
	task        Task
	queue       gpu.QueueKind
	usages      []UsageRecord
	descriptors []gpu.DescriptorHandle
	alloc       gpu.CommandAllocator
	scratch     *ScratchSpace
	list        gpu.CommandList
	submitted   bool
}

func (s *scheduler) Execute(frame *FrameContext) (FrameStats, error) {
	var stats FrameStats
	if !s.frameBusy.CompareAndSwap(false, true) {
		return stats, ErrPipelineBusy
	}
	defer s.frameBusy.Store(false)

	s.mu.Lock()
	p := s.pipeline
	invalid := s.pipelineInvalid
	s.mu.Unlock()
	if p == nil {
		return stats, ErrNoPipeline
	}
	if invalid {
		return stats, fmt.Errorf("%w: invalidated by an earlier submission failure", ErrPipelineInvalid)
	}

	s.mu.Lock()
	s.lastAllocators = frame.Allocators
	s.lastScratch = frame.Scratch
	s.mu.Unlock()

	// Reclaim everything the GPU has finished with since the last frame.
	completed := frame.Fence.CompletedValue()
	if err := frame.Allocators.Reclaim(completed); err != nil {
		gpu.Logger().Warn("allocator reclaim failed", "error", err)
	}
	frame.Scratch.Reclaim(completed)
	s.runCleanups(completed)

	snapshot := s.table.Snapshot()

	nodes, offset := s.buildFrameNodes(p, frame)
	stats.UploadsStaged = len(frame.Uploads)

	if err := s.setupPass(frame, nodes); err != nil {
		return stats, s.failFrame(frame, snapshot, nodes, err)
	}

	sched := s.buildFrameSchedule(p, nodes, offset)
	preds := framePredecessors(p, len(nodes), offset)

	if err := s.recordPass(frame, nodes, sched, preds); err != nil {
		return stats, s.failFrame(frame, snapshot, nodes, err)
	}

	if err := s.assembleAndSubmit(frame, nodes, sched, preds, &stats); err != nil {
		if errors.Is(err, ErrSubmissionFailed) {
			s.mu.Lock()
			s.pipelineInvalid = true
			s.mu.Unlock()
		}
		return stats, s.failFrame(frame, snapshot, nodes, err)
	}

	stats.TasksExecuted = len(nodes)
	if s.profiler != nil {
		s.profiler.Observe(stats.TasksExecuted, stats.BarriersEmitted, stats.BarrierBatches, stats.ParallelRuns)
		s.profiler.Tick()
	}
	return stats, nil
}

// buildFrameNodes assembles the frame's node list: the implicit upload task first (when the
// frame has uploads), then every pipeline task in NodeID order. The returned offset is the
// frame-node index of pipeline node 0.
func (s *scheduler) buildFrameNodes(p *Pipeline, frame *FrameContext) ([]*frameNode, int) {
	offset := 0
	var nodes []*frameNode
	if len(frame.Uploads) > 0 {
		nodes = append(nodes, &frameNode{
			task:  &uploadTask{uploads: frame.Uploads},
			queue: gpu.QueueKindGraphics,
		})
		offset = 1
	}
	for id := 0; id < p.TaskCount(); id++ {
		nodes = append(nodes, &frameNode{
			task:  p.Task(NodeID(id)),
			queue: p.Queue(NodeID(id)),
		})
	}
	return nodes, offset
}

// setupPass dispatches every task's Setup onto the worker pool and waits for all of them.
// Each task gets its own SetupContext and scratch space, so Setup bodies never contend.
func (s *scheduler) setupPass(frame *FrameContext, nodes []*frameNode) error {
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for _, node := range nodes {
		node.scratch = frame.Scratch.Acquire()
		ctx := &SetupContext{Frame: frame, scratch: node.scratch}
		n := node // capture for closure
		wg.Add(1)
		s.recordPool.SubmitTask(worker.Task{
			ID: int(s.workerTaskIDs.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				err := runGuarded(func() error { return n.task.Setup(ctx) })
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("%w: task %q: %v", ErrSetupFailed, n.task.Name(), err)
					}
					errMu.Unlock()
					return nil, err
				}
				sortUsages(ctx.usages)
				n.usages = ctx.usages
				n.descriptors = ctx.descriptors
				return nil, nil
			},
		})
	}
	wg.Wait()
	return firstErr
}

// buildFrameSchedule maps the pipeline schedule into frame-node index space and prepends the
// upload node when present.
func (s *scheduler) buildFrameSchedule(p *Pipeline, nodes []*frameNode, offset int) []scheduledEntry {
	pipelineSched := buildSchedule(p, func(id NodeID) []UsageRecord {
		return nodes[int(id)+offset].usages
	})
	if offset == 0 {
		return pipelineSched
	}
	sched := make([]scheduledEntry, 0, len(pipelineSched)+1)
	sched = append(sched, scheduledEntry{node: 0, queue: nodes[0].queue})
	for i, e := range pipelineSched {
		e.node += NodeID(offset)
		if i == 0 {
			e.compatibleWithPrev = usagesCompatible(nodes[e.node].usages, nodes[0].usages)
		}
		sched = append(sched, e)
	}
	return sched
}

// framePredecessors builds the per-frame-node predecessor lists from the pipeline edges,
// shifted past the upload node. The upload node has no predecessors and no successors: its
// ordering is enforced by schedule position and by the MultipleUse records on its targets.
func framePredecessors(p *Pipeline, nodeCount, offset int) [][]int {
	preds := make([][]int, nodeCount)
	for to, fromList := range p.predecessors() {
		for _, from := range fromList {
			preds[to+offset] = append(preds[to+offset], int(from)+offset)
		}
	}
	return preds
}

type recordResult struct {
	idx int
	err error
}

// recordPass dispatches task Execute bodies onto the worker pool, admitting tasks in schedule
// order. A task is dispatched as soon as (a) its DAG predecessors have completed Execute, and
// (b) it is parallel-compatible with every task currently recording, bounded by
// maxParallelRecord. Otherwise the orchestrator waits for a completion and retries.
func (s *scheduler) recordPass(frame *FrameContext, nodes []*frameNode, sched []scheduledEntry, preds [][]int) error {
	results := make(chan recordResult, len(sched))
	executed := make([]bool, len(nodes))
	inFlight := make(map[int]*frameNode)
	next, admitted, completed := 0, 0, 0
	var firstErr error

	for {
		for firstErr == nil && next < len(sched) && len(inFlight) < s.maxParallelRecord {
			idx := int(sched[next].node)
			node := nodes[idx]
			if !allDone(executed, preds[idx]) {
				break
			}
			if !s.compatibleWithInFlight(node, inFlight) {
				break
			}
			if err := s.dispatchRecord(frame, node, idx, results); err != nil {
				firstErr = err
				break
			}
			inFlight[idx] = node
			admitted++
			next++
		}
		if completed == admitted {
			if firstErr != nil || admitted == len(sched) {
				break
			}
		}
		res := <-results
		completed++
		delete(inFlight, res.idx)
		executed[res.idx] = true
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: task %q: %v", ErrExecuteFailed, nodes[res.idx].task.Name(), res.err)
		}
	}
	return firstErr
}

func (s *scheduler) compatibleWithInFlight(node *frameNode, inFlight map[int]*frameNode) bool {
	for _, other := range inFlight {
		if !usagesCompatible(node.usages, other.usages) {
			return false
		}
	}
	return true
}

// dispatchRecord acquires the task's allocator and command list on the orchestrator goroutine,
// then hands the Execute body to the worker pool.
func (s *scheduler) dispatchRecord(frame *FrameContext, node *frameNode, idx int, results chan<- recordResult) error {
	node.alloc = frame.Allocators.Acquire()
	list, err := node.alloc.NewCommandList()
	if err != nil {
		return fmt.Errorf("%w: task %q: creating command list: %v", ErrExecuteFailed, node.task.Name(), err)
	}
	node.list = list
	ctx := newRenderContext(frame, list, node.scratch)
	s.recordPool.SubmitTask(worker.Task{
		ID: int(s.workerTaskIDs.Add(1)),
		Do: func() (any, error) {
			err := runGuarded(func() error {
				if execErr := node.task.Execute(ctx); execErr != nil {
					return execErr
				}
				return list.Close()
			})
			results <- recordResult{idx: idx, err: err}
			return nil, err
		},
	})
	return nil
}

// assembleAndSubmit walks the schedule, injects barrier batches, and enqueues command lists on
// their queues. Parallel-compatible runs on the same queue share one barrier batch and one
// submission; the state table advances per task, in schedule order. Each submission signals the
// frame fence with a fresh value; a task whose DAG predecessor ran on a different queue gets a
// GPU-side fence wait before its submission.
func (s *scheduler) assembleAndSubmit(frame *FrameContext, nodes []*frameNode, sched []scheduledEntry, preds [][]int, stats *FrameStats) error {
	inj := &barrierInjector{table: s.table}

	// The frame's barrier batches record into lists drawn from one dedicated allocator. It is
	// recycled against the fence when any of its lists were submitted, and returned directly
	// otherwise, including on a mid-stream submission failure.
	barrierAlloc := frame.Allocators.Acquire()
	barrierAllocUsed := false
	submittedAny := false
	defer func() {
		if submittedAny && barrierAllocUsed {
			frame.Allocators.Recycle(barrierAlloc, s.fenceCursor)
			return
		}
		if err := frame.Allocators.Return(barrierAlloc); err != nil {
			gpu.Logger().Warn("returning barrier allocator", "error", err)
		}
	}()

	nodeFence := make([]uint64, len(nodes))

	for start := 0; start < len(sched); {
		end := s.groupEnd(nodes, sched, start)
		group := sched[start:end]
		queue := frame.queue(group[0].queue)

		usageLists := make([][]UsageRecord, 0, len(group))
		for _, e := range group {
			usageLists = append(usageLists, nodes[e.node].usages)
		}
		batch := inj.inject(usageLists...)

		var submitLists []gpu.CommandList
		if len(batch) > 0 {
			barrierList, err := barrierAlloc.NewCommandList()
			if err != nil {
				return fmt.Errorf("%w: creating barrier list: %v", ErrSubmissionFailed, err)
			}
			barrierAllocUsed = true
			barrierList.ResourceBarrier(batch...)
			if err := barrierList.Close(); err != nil {
				return fmt.Errorf("%w: closing barrier list: %v", ErrSubmissionFailed, err)
			}
			submitLists = append(submitLists, barrierList)
			stats.BarriersEmitted += len(batch)
			stats.BarrierBatches++
		}
		for _, e := range group {
			node := nodes[e.node]
			inj.advance(node.usages)
			submitLists = append(submitLists, node.list)
		}
		if len(group) > 1 {
			stats.ParallelRuns++
		}

		// Cross-queue edges: wait for any predecessor submitted to a different queue.
		for _, e := range group {
			for _, pred := range preds[e.node] {
				predQueue := frame.queue(nodes[pred].queue)
				if predQueue != queue && nodeFence[pred] > 0 {
					if err := queue.Wait(frame.Fence, nodeFence[pred]); err != nil {
						return fmt.Errorf("%w: cross-queue wait: %v", ErrSubmissionFailed, err)
					}
				}
			}
		}

		// Init work runs on the orchestrator immediately before GPU submission.
		for _, e := range group {
			if init, ok := nodes[e.node].task.(FrameInitializer); ok {
				init.Init()
			}
		}

		if err := queue.Submit(submitLists...); err != nil {
			return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		}
		submittedAny = true
		s.fenceCursor++
		value := s.fenceCursor
		if err := queue.Signal(frame.Fence, value); err != nil {
			return fmt.Errorf("%w: fence signal: %v", ErrSubmissionFailed, err)
		}

		for _, e := range group {
			node := nodes[e.node]
			node.submitted = true
			nodeFence[e.node] = value
			frame.Allocators.Recycle(node.alloc, value)
			frame.Scratch.Recycle(node.scratch, value)
			s.deferCleanup(value, cleanupForNode(frame, node))
		}

		gpu.Logger().Debug("submitted task run",
			"queue", queue.Kind().String(),
			"tasks", len(group),
			"barriers", len(batch),
			"fence", value,
		)
		start = end
	}

	if len(sched) == 0 {
		// An empty frame still signals so the cross-frame fence chain keeps advancing.
		s.fenceCursor++
		if err := frame.GraphicsQueue.Signal(frame.Fence, s.fenceCursor); err != nil {
			return fmt.Errorf("%w: fence signal: %v", ErrSubmissionFailed, err)
		}
	}

	stats.FenceValue = s.fenceCursor
	return nil
}

// groupEnd extends a run from start while each next entry is tagged compatible with its
// predecessor, stays on the same queue, and is pairwise compatible with every member already in
// the run. Chain compatibility alone is not enough: A~B and B~C does not imply A~C, and a
// shared barrier batch requires mutual compatibility.
func (s *scheduler) groupEnd(nodes []*frameNode, sched []scheduledEntry, start int) int {
	end := start + 1
	for end < len(sched) {
		if !sched[end].compatibleWithPrev || sched[end].queue != sched[start].queue {
			break
		}
		candidate := nodes[sched[end].node]
		mutual := true
		for i := start; i < end-1; i++ {
			if !usagesCompatible(candidate.usages, nodes[sched[i].node].usages) {
				mutual = false
				break
			}
		}
		if !mutual {
			break
		}
		end++
	}
	return end
}

// cleanupForNode builds the deferred cleanup for a submitted task: free its transient
// descriptors and run its optional Cleanup once the GPU is done with the frame.
func cleanupForNode(frame *FrameContext, node *frameNode) func() {
	descriptors := node.descriptors
	task := node.task
	heap := frame.DescriptorHeap
	return func() {
		for _, handle := range descriptors {
			heap.Free(handle)
		}
		if fin, ok := task.(FrameFinalizer); ok {
			fin.Cleanup()
		}
	}
}

func (s *scheduler) deferCleanup(fenceValue uint64, fn func()) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	s.cleanups = append(s.cleanups, cleanupEntry{fenceValue: fenceValue, fn: fn})
}

func (s *scheduler) runCleanups(completedValue uint64) {
	s.cleanupMu.Lock()
	remaining := s.cleanups[:0]
	var due []cleanupEntry
	for _, c := range s.cleanups {
		if c.fenceValue <= completedValue {
			due = append(due, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	s.cleanups = remaining
	s.cleanupMu.Unlock()
	for _, c := range due {
		c.fn()
	}
}

// failFrame aborts the current frame: unsubmitted allocations go straight back to their pools,
// the state table rolls back to its pre-frame snapshot, and the failure screen replaces the
// frame's output. The original error is returned with the failure-screen outcome attached when
// that also fails.
func (s *scheduler) failFrame(frame *FrameContext, snapshot map[stateKey]common.ResourceState, nodes []*frameNode, cause error) error {
	for _, node := range nodes {
		if node.submitted {
			continue
		}
		if node.alloc != nil {
			if err := frame.Allocators.Return(node.alloc); err != nil {
				gpu.Logger().Warn("discarding allocator from aborted frame", "task", node.task.Name(), "error", err)
			}
			node.alloc = nil
		}
		if node.scratch != nil {
			frame.Scratch.Return(node.scratch)
			node.scratch = nil
		}
		for _, handle := range node.descriptors {
			frame.DescriptorHeap.Free(handle)
		}
		node.descriptors = nil
	}

	s.table.Restore(snapshot)

	s.fenceCursor++
	if err := s.renderFailureScreen(frame, s.fenceCursor); err != nil {
		gpu.Logger().Error("failure screen failed", "error", err)
		return fmt.Errorf("%w (failure screen also failed: %v)", cause, err)
	}
	gpu.Logger().Error("frame aborted", "frame", frame.FrameIndex, "error", cause)
	return cause
}

// runGuarded invokes fn, converting a panic into an error so a failing task cannot take down
// the orchestrator or a pool worker.
func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func allDone(executed []bool, ids []int) bool {
	for _, id := range ids {
		if !executed[id] {
			return false
		}
	}
	return true
}

