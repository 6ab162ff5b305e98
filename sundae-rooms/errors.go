package sundaerooms

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier is returned when a required connection id is empty.
	ErrMissingIdentifier = errors.New("missing connection id")
	// ErrMissingChannel is returned when a required channel name is empty.
	ErrMissingChannel = errors.New("missing channel name")
	// ErrGone is wrapped by transports when the target connection no longer
	// exists on the transport side.
	ErrGone = errors.New("connection gone")
	// ErrUnknownMode is returned when an addressing mode can't be parsed.
	ErrUnknownMode = errors.New("unknown addressing mode")
	// ErrInvalidBody is returned when an emit body is not a JSON value.
	ErrInvalidBody = errors.New("body is not valid json")
)

// StorageError wraps any failure from a registry backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("registry %v failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorageError wraps err as a *StorageError for op. Nil stays nil and an
// error that is already a StorageError is returned unchanged.
func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
