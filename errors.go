package mapindex

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed storage.
	ErrClosed = errors.New("storage is closed")

	// ErrAlreadyOpen is returned when the storage path is already open in
	// this process.
	ErrAlreadyOpen = errors.New("storage is already open")
)

// StorageError reports a failed storage operation.
//
// The original underlying error can be accessed via errors.Unwrap.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("mapindex: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// translateError wraps err for the public boundary. Cancellation and a
// top-level StorageError pass through unchanged.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if se, ok := err.(*StorageError); ok {
		return se
	}

	return &StorageError{Op: op, Path: path, Err: err}
}
