package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUBackend implements the gpu interfaces over WebGPU. WebGPU tracks resource states inside
// the driver, so recorded transition barriers become no-ops, and it exposes a single device
// timeline instead of user fences, so fences are emulated by draining the device before each
// signal. The mapping is conservative but lets a pipeline built against this package run on
// real hardware unchanged.
type WGPUBackend struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	ids    atomic.Uint64
}

// NewWGPUBackend wraps an already-initialized WebGPU device and queue.
//
// Parameters:
//   - device: the WebGPU device
//   - queue: the device's queue
//
// Returns:
//   - *WGPUBackend: the backend
func NewWGPUBackend(device *wgpu.Device, queue *wgpu.Queue) *WGPUBackend {
	return &WGPUBackend{device: device, queue: queue}
}

// GraphicsQueue returns the backend's command queue. WebGPU exposes one queue; compute and
// copy submissions share it.
//
// Returns:
//   - CommandQueue: the queue
func (b *WGPUBackend) GraphicsQueue() CommandQueue {
	return &wgpuQueue{backend: b, kind: QueueKindGraphics}
}

// NewFence creates an emulated fence on the backend's device timeline.
//
// Returns:
//   - Fence: the fence
func (b *WGPUBackend) NewFence() Fence {
	f := &wgpuFence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// NewCommandAllocator creates a command allocator. WebGPU owns encoder memory internally, so
// the allocator is a thin factory whose Reset is a no-op.
//
// Returns:
//   - CommandAllocator: the allocator
func (b *WGPUBackend) NewCommandAllocator() CommandAllocator {
	return &wgpuCommandAllocator{backend: b}
}

// WrapTexture adopts a WebGPU texture as a schedulable resource. The view is used for clears;
// it may be nil for textures that are never cleared through the scheduler.
//
// Parameters:
//   - tex: the texture
//   - view: a render-attachment view of the texture, or nil
//   - name: the debug name
//   - subresources: mip levels times array layers
//
// Returns:
//   - Resource: the wrapped resource
func (b *WGPUBackend) WrapTexture(tex *wgpu.Texture, view *wgpu.TextureView, name string, subresources int) Resource {
	if subresources < 1 {
		subresources = 1
	}
	return &wgpuResource{id: b.ids.Add(1), name: name, subresources: subresources, texture: tex, view: view}
}

// WrapBuffer adopts a WebGPU buffer as a schedulable resource. Buffers always have one
// subresource.
//
// Parameters:
//   - buf: the buffer
//   - name: the debug name
//
// Returns:
//   - Resource: the wrapped resource
func (b *WGPUBackend) WrapBuffer(buf *wgpu.Buffer, name string) Resource {
	return &wgpuResource{id: b.ids.Add(1), name: name, subresources: 1, buffer: buf}
}

type wgpuResource struct {
	id           uint64
	name         string
	subresources int
	buffer       *wgpu.Buffer
	texture      *wgpu.Texture
	view         *wgpu.TextureView
}

var _ Resource = &wgpuResource{}

func (r *wgpuResource) ID() uint64            { return r.id }
func (r *wgpuResource) Name() string          { return r.name }
func (r *wgpuResource) SubresourceCount() int { return r.subresources }

type wgpuFence struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

var _ Fence = &wgpuFence{}

func (f *wgpuFence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *wgpuFence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.value {
		f.value = value
		f.cond.Broadcast()
	}
	return nil
}

func (f *wgpuFence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value {
		f.cond.Wait()
	}
	return nil
}

type wgpuCommandAllocator struct {
	backend *WGPUBackend
}

var _ CommandAllocator = &wgpuCommandAllocator{}

// Reset is a no-op: WebGPU reclaims encoder memory when command buffers are released.
func (a *wgpuCommandAllocator) Reset() error { return nil }

func (a *wgpuCommandAllocator) NewCommandList() (CommandList, error) {
	encoder, err := a.backend.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("creating command encoder: %w", err)
	}
	return &wgpuCommandList{backend: a.backend, encoder: encoder}, nil
}

type wgpuCommandList struct {
	backend  *WGPUBackend
	encoder  *wgpu.CommandEncoder
	finished *wgpu.CommandBuffer
	closed   bool
}

var _ CommandList = &wgpuCommandList{}

// Encoder exposes the underlying WebGPU command encoder so task implementations can record
// full render and compute passes that this interface does not model.
//
// Returns:
//   - *wgpu.CommandEncoder: the underlying encoder, or nil once the list is closed
func (l *wgpuCommandList) Encoder() *wgpu.CommandEncoder {
	return l.encoder
}

// ResourceBarrier is a no-op: WebGPU performs hazard tracking and layout transitions inside
// the driver.
func (l *wgpuCommandList) ResourceBarrier(barriers ...Barrier) {
	Logger().Debug("wgpu backend dropping explicit barriers", "count", len(barriers))
}

func (l *wgpuCommandList) ClearRenderTarget(target Resource, color common.Color) {
	if l.closed {
		return
	}
	res, ok := target.(*wgpuResource)
	if !ok || res.view == nil {
		Logger().Warn("clear target is not a wgpu texture with a view", "resource", target.Name())
		return
	}
	pass := l.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    res.view,
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: float64(color.R), G: float64(color.G), B: float64(color.B), A: float64(color.A),
				},
			},
		},
	})
	pass.End()
}

func (l *wgpuCommandList) CopyResource(src, dst Resource) {
	if l.closed {
		return
	}
	s, sok := src.(*wgpuResource)
	d, dok := dst.(*wgpuResource)
	if !sok || !dok {
		return
	}
	if s.buffer != nil && d.buffer != nil {
		l.encoder.CopyBufferToBuffer(s.buffer, 0, d.buffer, 0, s.buffer.GetSize())
		return
	}
	Logger().Warn("full-resource texture copies must be recorded through the encoder",
		"src", src.Name(), "dst", dst.Name())
}

func (l *wgpuCommandList) CopyBufferRegion(src Resource, srcOffset uint64, dst Resource, dstOffset, size uint64) {
	if l.closed {
		return
	}
	s, sok := src.(*wgpuResource)
	d, dok := dst.(*wgpuResource)
	if !sok || !dok || s.buffer == nil || d.buffer == nil {
		return
	}
	l.encoder.CopyBufferToBuffer(s.buffer, srcOffset, d.buffer, dstOffset, size)
}

// Draw and Dispatch require pipeline state this interface does not carry; tasks targeting the
// WGPU backend record passes through Encoder instead.
func (l *wgpuCommandList) Draw(vertexCount, instanceCount uint32) {
	Logger().Debug("wgpu backend ignoring bare draw; record passes through Encoder")
}

func (l *wgpuCommandList) Dispatch(x, y, z uint32) {
	Logger().Debug("wgpu backend ignoring bare dispatch; record passes through Encoder")
}

func (l *wgpuCommandList) Close() error {
	if l.closed {
		return ErrListClosed
	}
	buf, err := l.encoder.Finish(nil)
	if err != nil {
		l.encoder.Release()
		l.encoder = nil
		return fmt.Errorf("finishing command encoder: %w", err)
	}
	l.encoder.Release()
	l.encoder = nil
	l.finished = buf
	l.closed = true
	return nil
}

func (l *wgpuCommandList) Closed() bool { return l.closed }

type wgpuQueue struct {
	backend *WGPUBackend
	kind    QueueKind
}

var _ CommandQueue = &wgpuQueue{}

func (q *wgpuQueue) Kind() QueueKind { return q.kind }

func (q *wgpuQueue) Submit(lists ...CommandList) error {
	buffers := make([]*wgpu.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		wl, ok := l.(*wgpuCommandList)
		if !ok {
			return fmt.Errorf("submitting foreign command list to wgpu queue")
		}
		if !wl.closed {
			return ErrListOpen
		}
		buffers = append(buffers, wl.finished)
	}
	q.backend.queue.Submit(buffers...)
	for _, buf := range buffers {
		buf.Release()
	}
	return nil
}

// Signal drains the device timeline, then signals the fence. WebGPU has no enqueued fence
// signals, so this trades pipelining for correctness: the fence never reads ahead of the GPU.
func (q *wgpuQueue) Signal(fence Fence, value uint64) error {
	q.backend.device.Poll(true, nil)
	return fence.Signal(value)
}

// Wait blocks the CPU until the fence completes. Single-timeline WebGPU cannot express a
// GPU-side wait, and a CPU wait is strictly stronger.
func (q *wgpuQueue) Wait(fence Fence, value uint64) error {
	return fence.Wait(value)
}
