package scheduler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
	"github.com/Carmen-Shannon/forge-go/engine/gpu/noop"
)

// testTask is a configurable task for scheduler tests. By default Execute declares every usage
// via SetResourceState (as a real task would) and records one draw.
type testTask struct {
	name      string
	uses      []UsageRecord
	setupErr  error
	execErr   error
	executeFn func(ctx *RenderContext) error
}

func (t *testTask) Name() string { return t.name }

func (t *testTask) Setup(ctx *SetupContext) error {
	if t.setupErr != nil {
		return t.setupErr
	}
	for _, u := range t.uses {
		ctx.UseRecord(u)
	}
	return nil
}

func (t *testTask) Execute(ctx *RenderContext) error {
	if t.execErr != nil {
		return t.execErr
	}
	if t.executeFn != nil {
		return t.executeFn(ctx)
	}
	for _, u := range t.uses {
		ctx.SetResourceState(u.Resource, u.Subresource, u.FirstState)
	}
	ctx.CommandList().Draw(3, 1)
	return nil
}

func use(r gpu.Resource, first, last common.ResourceState, multiple bool) UsageRecord {
	return UsageRecord{
		Resource:    r,
		Subresource: common.AllSubresources,
		FirstState:  first,
		LastState:   last,
		MultipleUse: multiple,
	}
}

func newTestFrame(queue *noop.Queue, uploads ...UploadDescription) *FrameContext {
	return &FrameContext{
		BackBuffer:    noop.NewResource("backbuffer", 1),
		GraphicsQueue: queue,
		Allocators: NewCommandAllocatorPool(func() gpu.CommandAllocator {
			return noop.NewCommandAllocator()
		}),
		Scratch:        NewScratchSpacePool(64 << 10),
		DescriptorHeap: noop.NewDescriptorHeap(1024),
		Fence:          noop.NewFence(),
		Uploads:        uploads,
	}
}

// barrierOps extracts only the barrier batches from a submitted op stream.
func barrierOps(ops []noop.Op) [][]gpu.Barrier {
	var batches [][]gpu.Barrier
	for _, op := range ops {
		if op.Kind == noop.OpBarrier {
			batches = append(batches, op.Barriers)
		}
	}
	return batches
}

func newSerialScheduler() Scheduler {
	// A single worker makes submission-stream assertions independent of recording order.
	return NewScheduler(WithWorkerCount(1))
}

func TestExecuteSingleTaskSingleResource(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	texture := noop.NewResource("albedo", 1)

	s := newSerialScheduler()
	s.TrackResource(texture, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "draw",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	require.NoError(t, s.SetPipeline(p))

	stats, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TasksExecuted)
	assert.Equal(t, 1, stats.BarriersEmitted)
	assert.Equal(t, 1, stats.BarrierBatches)

	batches := barrierOps(queue.SubmittedOps())
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, common.ResourceStateCommon, batches[0][0].From)
	assert.Equal(t, common.ResourceStateRenderTarget, batches[0][0].To)
}

func TestExecuteLinearChainReuse(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	texture := noop.NewResource("gbuffer", 1)

	s := newSerialScheduler()
	s.TrackResource(texture, common.ResourceStateCommon)

	p := NewPipeline()
	a := p.AddTask(&testTask{
		name: "geometry",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	b := p.AddTask(&testTask{
		name: "lighting",
		uses: []UsageRecord{use(texture, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)},
	})
	p.AddDependency(a, b)
	require.NoError(t, s.SetPipeline(p))

	stats, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.BarriersEmitted)

	batches := barrierOps(queue.SubmittedOps())
	require.Len(t, batches, 2)
	assert.Equal(t, common.ResourceStateCommon, batches[0][0].From)
	assert.Equal(t, common.ResourceStateRenderTarget, batches[0][0].To)
	assert.Equal(t, common.ResourceStateRenderTarget, batches[1][0].From)
	assert.Equal(t, common.ResourceStateShaderResource, batches[1][0].To)
}

func TestExecuteParallelCompatiblePairSharesOneBatch(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	x := noop.NewResource("x", 1)

	s := newSerialScheduler()
	s.TrackResource(x, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "reader-a",
		uses: []UsageRecord{use(x, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)},
	})
	p.AddTask(&testTask{
		name: "reader-b",
		uses: []UsageRecord{use(x, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)},
	})
	require.NoError(t, s.SetPipeline(p))

	stats, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BarrierBatches)
	assert.Equal(t, 1, stats.ParallelRuns)

	// One batch establishing shader-resource, then both draw lists with no barriers between.
	ops := queue.SubmittedOps()
	require.Len(t, ops, 3)
	assert.Equal(t, noop.OpBarrier, ops[0].Kind)
	assert.Equal(t, noop.OpDraw, ops[1].Kind)
	assert.Equal(t, noop.OpDraw, ops[2].Kind)
}

func TestExecuteParallelIncompatiblePairSerializes(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	x := noop.NewResource("x", 1)

	s := newSerialScheduler()
	s.TrackResource(x, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "reader",
		uses: []UsageRecord{use(x, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)},
	})
	p.AddTask(&testTask{
		name: "writer",
		uses: []UsageRecord{use(x, common.ResourceStateUnorderedAccess, common.ResourceStateUnorderedAccess, true)},
	})
	require.NoError(t, s.SetPipeline(p))

	stats, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.BarrierBatches)
	assert.Equal(t, 0, stats.ParallelRuns)

	batches := barrierOps(queue.SubmittedOps())
	require.Len(t, batches, 2)
	assert.Equal(t, common.ResourceStateShaderResource, batches[1][0].From)
	assert.Equal(t, common.ResourceStateUnorderedAccess, batches[1][0].To)
}

func TestExecuteAllSubresourcesFanOut(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	r := noop.NewResource("atlas", 4)

	s := newSerialScheduler()
	s.TrackResource(r, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "stage",
		uses: []UsageRecord{use(r, common.ResourceStateCopyDest, common.ResourceStateCopyDest, false)},
	})
	require.NoError(t, s.SetPipeline(p))

	frame := newTestFrame(queue)
	// Seed an uneven starting layout: subresource 2 diverges from the rest.
	s.TrackResource(r, common.ResourceStateCommon)
	sImpl := s.(*scheduler)
	sImpl.table.Set(r, 2, common.ResourceStateRenderTarget)

	_, err := s.Execute(frame)
	require.NoError(t, err)

	batches := barrierOps(queue.SubmittedOps())
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 4)

	from := map[int]common.ResourceState{}
	for _, b := range batches[0] {
		assert.Equal(t, common.ResourceStateCopyDest, b.To)
		assert.NotEqual(t, b.From, b.To, "no redundant barriers")
		from[b.Subresource] = b.From
	}
	assert.Equal(t, common.ResourceStateCommon, from[0])
	assert.Equal(t, common.ResourceStateCommon, from[1])
	assert.Equal(t, common.ResourceStateRenderTarget, from[2])
	assert.Equal(t, common.ResourceStateCommon, from[3])

	for k := 0; k < 4; k++ {
		state, ok := sImpl.table.Get(r, k)
		require.True(t, ok)
		assert.Equal(t, common.ResourceStateCopyDest, state)
	}
}

func TestExecuteFailureIsolatesStateAndRendersFailureScreen(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	texture := noop.NewResource("target", 1)

	s := newSerialScheduler()
	s.TrackResource(texture, common.ResourceStateCommon)

	p := NewPipeline()
	a := p.AddTask(&testTask{
		name: "ok",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	b := p.AddTask(&testTask{
		name:    "broken",
		execErr: errors.New("boom"),
	})
	p.AddDependency(a, b)
	require.NoError(t, s.SetPipeline(p))

	frame := newTestFrame(queue)
	_, err := s.Execute(frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecuteFailed)

	// Nothing from the aborted frame was submitted; only the failure screen list is.
	lists := queue.Submitted()
	require.Len(t, lists, 1)
	ops := lists[0].Ops()
	var sawClear bool
	for _, op := range ops {
		if op.Kind == noop.OpClear {
			sawClear = true
			assert.Equal(t, common.ColorFailureMagenta, op.Color)
		}
	}
	assert.True(t, sawClear, "failure screen clears the back buffer")

	// The aborted frame's usage advances were rolled back.
	sImpl := s.(*scheduler)
	state, ok := sImpl.table.Get(texture, 0)
	require.True(t, ok)
	assert.Equal(t, common.ResourceStateCommon, state)

	// The fence chain stayed intact and the next frame runs normally.
	assert.Greater(t, frame.Fence.CompletedValue(), uint64(0))
	sImpl.table.Track(texture, common.ResourceStateCommon)
	p2 := NewPipeline()
	p2.AddTask(&testTask{
		name: "recovered",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	require.NoError(t, s.SetPipeline(p2))
	queue.Clear()
	_, err = s.Execute(newTestFrame(queue))
	require.NoError(t, err)
}

func TestExecuteSetupFailureAbortsBeforeRecording(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)

	s := newSerialScheduler()
	p := NewPipeline()
	p.AddTask(&testTask{name: "bad-setup", setupErr: errors.New("no camera")})
	require.NoError(t, s.SetPipeline(p))

	_, err := s.Execute(newTestFrame(queue))
	assert.ErrorIs(t, err, ErrSetupFailed)
	require.Len(t, queue.Submitted(), 1, "only the failure screen submits")
}

func TestExecutePanicInTaskBecomesError(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)

	s := newSerialScheduler()
	p := NewPipeline()
	p.AddTask(&testTask{
		name:      "panicky",
		executeFn: func(ctx *RenderContext) error { panic("index out of range") },
	})
	require.NoError(t, s.SetPipeline(p))

	_, err := s.Execute(newTestFrame(queue))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecuteFailed)
	assert.Contains(t, err.Error(), "panic")
}

func TestExecuteSubmissionFailureInvalidatesPipeline(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	texture := noop.NewResource("target", 1)

	s := newSerialScheduler()
	s.TrackResource(texture, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "draw",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	require.NoError(t, s.SetPipeline(p))

	queue.SetSubmitError(gpu.ErrDeviceLost)
	_, err := s.Execute(newTestFrame(queue))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailed)

	queue.SetSubmitError(nil)
	_, err = s.Execute(newTestFrame(queue))
	assert.ErrorIs(t, err, ErrPipelineInvalid)

	// Replacing the pipeline clears the invalidation.
	require.NoError(t, s.SetPipeline(p))
	_, err = s.Execute(newTestFrame(queue))
	assert.NoError(t, err)
}

func TestExecuteUploadTaskRunsFirstAndTransitionsTargets(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	staging := noop.NewResource("staging", 1)
	mesh := noop.NewResource("mesh-vertices", 1)
	texture := noop.NewResource("drawn", 1)

	s := newSerialScheduler()
	s.TrackResource(staging, common.ResourceStateCommon)
	s.TrackResource(mesh, common.ResourceStateCommon)
	s.TrackResource(texture, common.ResourceStateCommon)

	p := NewPipeline()
	p.AddTask(&testTask{
		name: "draw",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	})
	require.NoError(t, s.SetPipeline(p))

	frame := newTestFrame(queue, UploadDescription{
		Source:      staging,
		Target:      mesh,
		Size:        1024,
		TargetState: common.ResourceStateShaderResource,
	})
	stats, err := s.Execute(frame)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TasksExecuted)
	assert.Equal(t, 1, stats.UploadsStaged)

	lists := queue.Submitted()
	require.GreaterOrEqual(t, len(lists), 2)

	// The first task list (after its barrier batch) is the upload: copy then the post-upload
	// transition recorded inside the list.
	var uploadOps []noop.Op
	for _, l := range lists {
		ops := l.Ops()
		if len(ops) > 0 && ops[0].Kind == noop.OpCopyBufferRegion {
			uploadOps = ops
			break
		}
	}
	require.NotEmpty(t, uploadOps, "upload list found")
	assert.Equal(t, uint64(1024), uploadOps[0].Size)
	require.Len(t, uploadOps, 2)
	assert.Equal(t, noop.OpBarrier, uploadOps[1].Kind)
	assert.Equal(t, common.ResourceStateCopyDest, uploadOps[1].Barriers[0].From)
	assert.Equal(t, common.ResourceStateShaderResource, uploadOps[1].Barriers[0].To)

	sImpl := s.(*scheduler)
	state, ok := sImpl.table.Get(mesh, 0)
	require.True(t, ok)
	assert.Equal(t, common.ResourceStateShaderResource, state)
}

func TestExecuteDeterministicSubmissionStream(t *testing.T) {
	run := func() []noop.Op {
		queue := noop.NewQueue(gpu.QueueKindGraphics)
		a := noop.NewResource("a", 1)
		b := noop.NewResource("b", 1)

		s := newSerialScheduler()
		s.TrackResource(a, common.ResourceStateCommon)
		s.TrackResource(b, common.ResourceStateCommon)

		p := NewPipeline()
		t0 := p.AddTask(&testTask{name: "t0", uses: []UsageRecord{use(a, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)}})
		t1 := p.AddTask(&testTask{name: "t1", uses: []UsageRecord{use(b, common.ResourceStateUnorderedAccess, common.ResourceStateUnorderedAccess, true)}})
		t2 := p.AddTask(&testTask{name: "t2", uses: []UsageRecord{use(a, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)}})
		p.AddDependency(t0, t2)
		p.AddDependency(t1, t2)
		if err := s.SetPipeline(p); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Execute(newTestFrame(queue)); err != nil {
			t.Fatal(err)
		}
		return queue.SubmittedOps()
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind, "op %d kind", i)
		require.Equal(t, len(first[i].Barriers), len(second[i].Barriers), "op %d barriers", i)
		for j := range first[i].Barriers {
			assert.Equal(t, first[i].Barriers[j].From, second[i].Barriers[j].From)
			assert.Equal(t, first[i].Barriers[j].To, second[i].Barriers[j].To)
			assert.Equal(t, first[i].Barriers[j].Subresource, second[i].Barriers[j].Subresource)
		}
	}
}

func TestLifecycleBusyDuringFrame(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)

	s := newSerialScheduler()
	p := NewPipeline()
	var busyErr error
	p.AddTask(&testTask{
		name: "prober",
		executeFn: func(ctx *RenderContext) error {
			_, busyErr = s.ReleasePipeline()
			return nil
		},
	})
	require.NoError(t, s.SetPipeline(p))

	_, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.ErrorIs(t, busyErr, ErrPipelineBusy)
}

func TestSetPipelineRejectsCycle(t *testing.T) {
	s := newSerialScheduler()
	p := NewPipeline()
	a := p.AddTask(&testTask{name: "a"})
	b := p.AddTask(&testTask{name: "b"})
	p.AddDependency(a, b)
	p.AddDependency(b, a)
	assert.ErrorIs(t, s.SetPipeline(p), ErrPipelineInvalid)
	assert.Nil(t, s.GetPipeline())
}

func TestReleasePipelineMovesOut(t *testing.T) {
	s := newSerialScheduler()
	p := NewPipeline()
	p.AddTask(&testTask{name: "only"})
	require.NoError(t, s.SetPipeline(p))

	got, err := s.ReleasePipeline()
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Nil(t, s.GetPipeline())

	_, err = s.Execute(newTestFrame(noop.NewQueue(gpu.QueueKindGraphics)))
	assert.ErrorIs(t, err, ErrNoPipeline)
}

func TestReleaseResourcesDropsCachedAllocations(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)
	texture := noop.NewResource("target", 1)

	s := newSerialScheduler()
	s.TrackResource(texture, common.ResourceStateCommon)

	task := &releasingTask{testTask: testTask{
		name: "cached",
		uses: []UsageRecord{use(texture, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false)},
	}}
	p := NewPipeline()
	p.AddTask(task)
	require.NoError(t, s.SetPipeline(p))

	frame := newTestFrame(queue)
	_, err := s.Execute(frame)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseResources())
	assert.True(t, task.released)

	// The frame's pools were emptied: nothing cached, nothing parked on the fence.
	assert.Empty(t, frame.Allocators.free)
	assert.Empty(t, frame.Allocators.parked)
	assert.Empty(t, frame.Scratch.free)
	assert.Empty(t, frame.Scratch.parked)
	// Deferred cleanups ran, so the frame's transient descriptors are all back.
	assert.Equal(t, 0, frame.DescriptorHeap.(*noop.DescriptorHeap).Live())

	sImpl := s.(*scheduler)
	assert.Equal(t, 0, sImpl.table.Len())
	assert.Nil(t, sImpl.lastAllocators)
	assert.Nil(t, sImpl.lastScratch)
}

type releasingTask struct {
	testTask
	released bool
}

func (t *releasingTask) ReleaseResources() { t.released = true }

func TestParallelRecordingManyIndependentTasks(t *testing.T) {
	queue := noop.NewQueue(gpu.QueueKindGraphics)

	s := NewScheduler(WithWorkerCount(4), WithMaxParallelRecord(4))
	p := NewPipeline()
	resources := make([]*noop.Resource, 8)
	for i := range resources {
		resources[i] = noop.NewResource(fmt.Sprintf("island-%d", i), 1)
		s.TrackResource(resources[i], common.ResourceStateCommon)
		p.AddTask(&testTask{
			name: fmt.Sprintf("task-%d", i),
			uses: []UsageRecord{use(resources[i], common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)},
		})
	}
	require.NoError(t, s.SetPipeline(p))

	stats, err := s.Execute(newTestFrame(queue))
	require.NoError(t, err)
	assert.Equal(t, 8, stats.TasksExecuted)
	// All tasks touch disjoint resources, so the whole frame collapses into one run and the
	// eight transitions share a single batch.
	assert.Equal(t, 1, stats.BarrierBatches)
	assert.Equal(t, 8, stats.BarriersEmitted)
	assert.Equal(t, 1, stats.ParallelRuns)
}
