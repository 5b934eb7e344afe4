package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
	"github.com/Carmen-Shannon/forge-go/engine/gpu/noop"
)

func newTestRenderContext(t *testing.T) (*RenderContext, *noop.CommandList) {
	t.Helper()
	alloc := noop.NewCommandAllocator()
	list, err := alloc.NewCommandList()
	require.NoError(t, err)
	ctx := newRenderContext(nil, list, NewScratchSpace(4096))
	return ctx, list.(*noop.CommandList)
}

func TestSetResourceStateFirstCallDeclaresOnly(t *testing.T) {
	ctx, list := newTestRenderContext(t)
	r := noop.NewResource("r", 1)

	ctx.SetResourceState(r, 0, common.ResourceStateRenderTarget)
	assert.Empty(t, list.Ops(), "first call per subresource records no barrier")
}

func TestSetResourceStateSecondCallEmitsBarrier(t *testing.T) {
	ctx, list := newTestRenderContext(t)
	r := noop.NewResource("r", 1)

	ctx.SetResourceState(r, 0, common.ResourceStateCopyDest)
	ctx.SetResourceState(r, 0, common.ResourceStateShaderResource)

	ops := list.Ops()
	require.Len(t, ops, 1)
	require.Equal(t, noop.OpBarrier, ops[0].Kind)
	assert.Equal(t, common.ResourceStateCopyDest, ops[0].Barriers[0].From)
	assert.Equal(t, common.ResourceStateShaderResource, ops[0].Barriers[0].To)
}

func TestSetResourceStateRedundantCallIsElided(t *testing.T) {
	ctx, list := newTestRenderContext(t)
	r := noop.NewResource("r", 1)

	ctx.SetResourceState(r, 0, common.ResourceStateCopyDest)
	ctx.SetResourceState(r, 0, common.ResourceStateCopyDest)
	assert.Empty(t, list.Ops())
}

func TestSetResourceStateAllSubresourcesTracksEachIndex(t *testing.T) {
	ctx, list := newTestRenderContext(t)
	r := noop.NewResource("r", 3)

	ctx.SetResourceState(r, common.AllSubresources, common.ResourceStateCopyDest)
	// Transitioning one subresource afterwards barriers only that one.
	ctx.SetResourceState(r, 1, common.ResourceStateShaderResource)

	ops := list.Ops()
	require.Len(t, ops, 1)
	require.Len(t, ops[0].Barriers, 1)
	assert.Equal(t, 1, ops[0].Barriers[0].Subresource)
}

func TestSetupContextCollectsTransients(t *testing.T) {
	frame := newTestFrame(noop.NewQueue(gpu.QueueKindGraphics))
	scratch := frame.Scratch.Acquire()
	ctx := &SetupContext{Frame: frame, scratch: scratch}

	handle, err := ctx.AllocateDescriptors(4)
	require.NoError(t, err)
	assert.Equal(t, 4, handle.Count)

	rng, err := ctx.AllocateConstants(64)
	require.NoError(t, err)
	assert.Len(t, rng.Bytes, 64)

	r := noop.NewResource("r", 1)
	ctx.Use(r, common.AllSubresources, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false)
	assert.Len(t, ctx.usages, 1)
	assert.Len(t, ctx.descriptors, 1)
}
