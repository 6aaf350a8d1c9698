package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySession     = errors.New("session id is required")
	ErrEmptySpeaker     = errors.New("speaker is required")
	ErrEmptyContent     = errors.New("content must not be empty")
	ErrInvalidRole      = errors.New("role must be user or assistant")
	ErrUnknownAgent     = errors.New("agent not found")
	ErrDuplicatePersona = errors.New("persona already registered")
	ErrInvalidPersona   = errors.New("persona needs a name and an instruction")

	// ErrTransient marks a provider error worth retrying (rate limits, 5xx).
	ErrTransient = errors.New("transient provider error")
)

// StorageError marks a fault of the durable store. It is the only failure
// that aborts a fan-out.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err, or returns nil when err is nil.
func NewStorageError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// IsStorageFault reports whether err carries a StorageError.
func IsStorageFault(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
