package frames

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFrame is matched by every UnsupportedFrameError.
var ErrUnsupportedFrame = errors.New("unsupported frame")

// UnsupportedFrameError names a frame the converter does not know.
type UnsupportedFrameError struct {
	Name string
}

func (e *UnsupportedFrameError) Error() string {
	return fmt.Sprintf("unsupported frame: %q", e.Name)
}

// Is makes errors.Is(err, ErrUnsupportedFrame) succeed.
func (e *UnsupportedFrameError) Is(target error) bool {
	return target == ErrUnsupportedFrame
}
