package scheduler

import (
	"fmt"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// renderFailureScreen records and submits the minimal frame that replaces an aborted one: a
// single command list clearing the back buffer to the failure color and leaving it presentable.
// The frame fence is signaled exactly as a successful frame would have signaled it, keeping the
// cross-frame fence chain intact so subsequent frames can recover.
//
// The state table has already been restored to its pre-frame snapshot when this runs; the back
// buffer transition is derived from that restored state and the table is advanced to present,
// mirroring what the real frame would have published.
func (s *scheduler) renderFailureScreen(frame *FrameContext, fenceValue uint64) error {
	alloc := frame.Allocators.Acquire()
	list, err := alloc.NewCommandList()
	if err != nil {
		return fmt.Errorf("creating failure screen list: %w", err)
	}

	back := frame.BackBuffer
	current, known := s.table.Get(back, 0)
	if !known {
		current = common.ResourceStateCommon
	}
	if current != common.ResourceStateRenderTarget {
		list.ResourceBarrier(gpu.Barrier{
			Resource:    back,
			Subresource: common.AllSubresources,
			From:        current,
			To:          common.ResourceStateRenderTarget,
		})
	}
	list.ClearRenderTarget(back, s.failureColor)
	list.ResourceBarrier(gpu.Barrier{
		Resource:    back,
		Subresource: common.AllSubresources,
		From:        common.ResourceStateRenderTarget,
		To:          common.ResourceStatePresent,
	})
	if err := list.Close(); err != nil {
		return fmt.Errorf("closing failure screen list: %w", err)
	}

	queue := frame.GraphicsQueue
	if err := queue.Submit(list); err != nil {
		return fmt.Errorf("submitting failure screen: %w", err)
	}
	if err := queue.Signal(frame.Fence, fenceValue); err != nil {
		return fmt.Errorf("signaling frame fence after failure: %w", err)
	}
	frame.Allocators.Recycle(alloc, fenceValue)
	s.table.Track(back, common.ResourceStatePresent)
	return nil
}
