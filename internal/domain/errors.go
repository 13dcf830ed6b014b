// Package domain holds the error taxonomy shared by the clinic workflow packages.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means storage could not be reached at all. Fatal at startup.
	ErrConnection = errors.New("storage unavailable")

	// ErrStorage matches every *StorageError via errors.Is.
	ErrStorage = errors.New("storage failure")

	// ErrDosageTooHigh is returned by the dosage-safety gate. The caller may
	// correct the dosage and resubmit; nothing was written.
	ErrDosageTooHigh = errors.New("dosage too high")

	// ErrReferenceSelection means a selected patient, doctor or medication id
	// is malformed or does not exist.
	ErrReferenceSelection = errors.New("invalid reference selection")
)

// StorageError wraps a failed query or insert with the operation that issued it.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage so callers need not type-assert.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
