package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrBadPath      = errors.New("invalid document path")
	ErrMalformedDoc = errors.New("malformed document")
)

// PartialWriteError reports a symmetric write that succeeded on the first
// path and failed on the second. The first write is not rolled back; the
// two paths stay divergent until a future write to either one.
type PartialWriteError struct {
	Written string
	Failed  string
	Cause   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial symmetric write: %s written, %s failed: %v", e.Written, e.Failed, e.Cause)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Cause
}
