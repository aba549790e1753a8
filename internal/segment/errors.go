package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrCreateFailed means the segment or one of its semaphores could not be
	// created. An existing object of the same name is the usual cause.
	ErrCreateFailed = errors.New("segment create failed")
	// ErrOpenFailed means the object is missing or is not a compatible segment.
	ErrOpenFailed = errors.New("segment open failed")
	// ErrSizeMismatch means the mapped size disagrees with the header.
	ErrSizeMismatch = errors.New("segment size mismatch")
	// ErrNotOwner is returned by Unlink on a segment this process only opened.
	ErrNotOwner = errors.New("segment not owned by this process")
)

// Error describes a failed segment operation.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("segment %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func segErr(op, name string, kind, cause error) error {
	if cause == nil {
		return &Error{Op: op, Name: name, Err: kind}
	}
	return &Error{Op: op, Name: name, Err: fmt.Errorf("%w: %w", kind, cause)}
}
