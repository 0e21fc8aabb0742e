package gaze

import (
	"errors"
	"fmt"
)

var (
	// ErrHardwareRead is matched by every *HardwareReadError.
	ErrHardwareRead = errors.New("tracker read failed")

	// ErrNoFrame is returned by sources that have not received a frame yet.
	ErrNoFrame = errors.New("no tracker frame available")
)

// HardwareReadError wraps a FrameSource failure. The processor keeps the
// previous frame when it returns one.
type HardwareReadError struct {
	Err error
}

func (e *HardwareReadError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHardwareRead, e.Err)
}

// Unwrap exposes the source error.
func (e *HardwareReadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrHardwareRead.
func (e *HardwareReadError) Is(target error) bool {
	return target == ErrHardwareRead
}
