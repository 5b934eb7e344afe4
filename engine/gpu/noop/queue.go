package noop

import (
	"sync"

	"github.com/Carmen-Shannon/forge-go/engine/gpu"
)

// Queue implements gpu.CommandQueue for the noop backend. Submitted lists are retained in
// submission order for inspection; fence signals fire immediately since there is no real GPU
// to wait for.
type Queue struct {
	kind gpu.QueueKind

	mu        sync.Mutex
	submitted []*CommandList
	submitErr error
}

var _ gpu.CommandQueue = &Queue{}

// NewQueue creates a noop command queue of the given kind.
//
// Parameters:
//   - kind: the queue family the queue simulates
//
// Returns:
//   - *Queue: the new queue
func NewQueue(kind gpu.QueueKind) *Queue {
	return &Queue{kind: kind}
}

func (q *Queue) Kind() gpu.QueueKind { return q.kind }

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	for _, l := range lists {
		if !l.Closed() {
			return gpu.ErrListOpen
		}
	}
	for _, l := range lists {
		if nl, ok := l.(*CommandList); ok {
			q.submitted = append(q.submitted, nl)
		}
	}
	return nil
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	// Submissions complete instantly, so the signal fires right away.
	return fence.Signal(value)
}

func (q *Queue) Wait(fence gpu.Fence, value uint64) error {
	// All prior work is already complete; a GPU-side wait has nothing to hold back.
	return nil
}

// Submitted returns every command list submitted to this queue, in submission order.
//
// Returns:
//   - []*CommandList: the submitted lists
func (q *Queue) Submitted() []*CommandList {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*CommandList, len(q.submitted))
	copy(out, q.submitted)
	return out
}

// SubmittedOps flattens the ops of every submitted list into one stream, in submission then
// recording order.
//
// Returns:
//   - []Op: the flattened command stream
func (q *Queue) SubmittedOps() []Op {
	var ops []Op
	for _, l := range q.Submitted() {
		ops = append(ops, l.Ops()...)
	}
	return ops
}

// SetSubmitError makes every subsequent Submit fail with the given error until called again
// with nil. Used to exercise submission-failure handling.
//
// Parameters:
//   - err: the error Submit should return, or nil to restore normal behavior
func (q *Queue) SetSubmitError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitErr = err
}

// Clear drops all retained submissions.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = q.submitted[:0]
}
