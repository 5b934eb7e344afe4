package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu/noop"
)

func TestInjectEmitsOnlyRealTransitions(t *testing.T) {
	table := NewResourceStateTable()
	inj := &barrierInjector{table: table}

	a := noop.NewResource("a", 1)
	b := noop.NewResource("b", 1)
	table.Track(a, common.ResourceStateShaderResource)
	table.Track(b, common.ResourceStateCommon)

	batch := inj.inject(sorted(
		use(a, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false),
		use(b, common.ResourceStateRenderTarget, common.ResourceStateRenderTarget, false),
	))

	// a is already in the required state: no barrier for it, ever.
	require.Len(t, batch, 1)
	assert.Equal(t, b.ID(), batch[0].Resource.ID())
	assert.Equal(t, common.ResourceStateCommon, batch[0].From)
	assert.Equal(t, common.ResourceStateRenderTarget, batch[0].To)
	for _, barrier := range batch {
		assert.NotEqual(t, barrier.From, barrier.To)
	}
}

func TestInjectDeduplicatesAcrossCompatibleLists(t *testing.T) {
	table := NewResourceStateTable()
	inj := &barrierInjector{table: table}

	x := noop.NewResource("x", 1)
	table.Track(x, common.ResourceStateCommon)

	reader := sorted(use(x, common.ResourceStateShaderResource, common.ResourceStateShaderResource, false))
	batch := inj.inject(reader, reader)

	// Two compatible tasks need the same transition once, not twice.
	require.Len(t, batch, 1)
}

func TestInjectUnknownResourceAssumesFirstState(t *testing.T) {
	table := NewResourceStateTable()
	inj := &barrierInjector{table: table}

	r := noop.NewResource("untracked", 2)
	batch := inj.inject(sorted(use(r, common.ResourceStateCopyDest, common.ResourceStateCopyDest, false)))

	// No barrier is emitted; the assumption is recorded so later tasks transition correctly.
	assert.Empty(t, batch)
	for k := 0; k < 2; k++ {
		state, ok := table.Get(r, k)
		require.True(t, ok)
		assert.Equal(t, common.ResourceStateCopyDest, state)
	}
}

func TestAdvanceMovesTableToLastState(t *testing.T) {
	table := NewResourceStateTable()
	inj := &barrierInjector{table: table}

	r := noop.NewResource("r", 1)
	table.Track(r, common.ResourceStateCommon)

	usages := sorted(UsageRecord{
		Resource:    r,
		Subresource: common.AllSubresources,
		FirstState:  common.ResourceStateCopyDest,
		LastState:   common.ResourceStateShaderResource,
		MultipleUse: true,
	})
	batch := inj.inject(usages)
	require.Len(t, batch, 1)
	inj.advance(usages)

	state, _ := table.Get(r, 0)
	assert.Equal(t, common.ResourceStateShaderResource, state)
}

func TestInjectSpecificSubresource(t *testing.T) {
	table := NewResourceStateTable()
	inj := &barrierInjector{table: table}

	r := noop.NewResource("mips", 4)
	table.Track(r, common.ResourceStateCommon)

	batch := inj.inject(sorted(UsageRecord{
		Resource:    r,
		Subresource: 2,
		FirstState:  common.ResourceStateCopyDest,
		LastState:   common.ResourceStateCopyDest,
	}))
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Subresource)

	// Only subresource 2 is touched by advance as well.
	inj.advance(sorted(UsageRecord{
		Resource:    r,
		Subresource: 2,
		FirstState:  common.ResourceStateCopyDest,
		LastState:   common.ResourceStateCopyDest,
	}))
	state, _ := table.Get(r, 1)
	assert.Equal(t, common.ResourceStateCommon, state)
	state, _ = table.Get(r, 2)
	assert.Equal(t, common.ResourceStateCopyDest, state)
}
