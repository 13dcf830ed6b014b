package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStorageError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStorageError("insert patient", cause)

	if !errors.Is(err, ErrStorage) {
		t.Fatal("expected errors.Is(err, ErrStorage)")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to be reachable through Unwrap")
	}
	if got, want := err.Error(), "insert patient: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var se *StorageError
	if !errors.As(fmt.Errorf("outer: %w", err), &se) {
		t.Fatal("expected errors.As to find *StorageError")
	}
	if se.Op != "insert patient" {
		t.Errorf("Op = %q", se.Op)
	}
}

func TestNewStorageError_Nil(t *testing.T) {
	if err := NewStorageError("noop", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
