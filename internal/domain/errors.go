package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is absent from the local list.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidEntity marks a draft or patch that fails local validation.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrInvalidTransition marks a reminder status change out of a sink state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FailureKind groups sync failures for display. Repositories behave identically for every kind.
type FailureKind string

const (
	FailureNetwork  FailureKind = "network_failure"
	FailureNotFound FailureKind = "not_found"
	FailureRejected FailureKind = "remote_rejected"
	FailureUnknown  FailureKind = "unknown"
)

// SyncError is the failure surfaced by a repository operation.
type SyncError struct {
	Kind       FailureKind
	Op         string
	Collection string
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Collection, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Collection, e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, defaulting to FailureUnknown.
func KindOf(err error) FailureKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return FailureUnknown
}
