package gpu

import "errors"

// Common GPU-layer errors shared by all backends.
var (
	// ErrListClosed indicates a recording command was issued on a closed command list.
	ErrListClosed = errors.New("gpu: command list is closed")

	// ErrListOpen indicates a command list was submitted before Close was called on it.
	ErrListOpen = errors.New("gpu: command list is still recording")

	// ErrHeapExhausted indicates a descriptor heap has no contiguous run of the requested size.
	ErrHeapExhausted = errors.New("gpu: descriptor heap exhausted")

	// ErrDeviceLost indicates the backend device was lost or destroyed. Submitted work is gone
	// and the device must be recreated.
	ErrDeviceLost = errors.New("gpu: device lost")
)
