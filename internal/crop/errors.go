package crop

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBoundingBox means no band held a foreground pixel.
	ErrEmptyBoundingBox = errors.New("no foreground pixels in any band")
	// ErrDegenerateExtent means the mapped extent has no area.
	ErrDegenerateExtent = errors.New("degenerate crop extent")
)

// WriteError reports a band that could not be written
type WriteError struct {
	Band int
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write band %d to %s: %v", e.Band, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
