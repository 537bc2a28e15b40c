package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sync error kinds
var (
	// ErrAccess indicates a source or replica root is missing or unreadable
	ErrAccess = errors.New("access error")

	// ErrRead indicates a file could not be opened or read
	ErrRead = errors.New("read error")

	// ErrWrite indicates a create, copy or delete on the replica failed
	ErrWrite = errors.New("write error")
)

// Filesystem errors
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNestedRoots indicates one root lies inside the other
	ErrNestedRoots = errors.New("source and replica roots overlap")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// Op names a filesystem operation performed during a cycle
type Op string

const (
	OpFingerprint Op = "fingerprint"
	OpCopy        Op = "copy"
	OpMkdir       Op = "mkdir"
	OpDelete      Op = "delete"
	OpWalk        Op = "walk"
	OpStat        Op = "stat"
)

// SyncError records a per-item failure with enough context to diagnose it
type SyncError struct {
	Op   Op
	Path string
	Kind error // one of ErrAccess, ErrRead, ErrWrite
	Err  error
}

// NewReadError wraps err as a ReadError for path
func NewReadError(op Op, path string, err error) *SyncError {
	return &SyncError{Op: op, Path: path, Kind: ErrRead, Err: err}
}

// NewWriteError wraps err as a WriteError for path
func NewWriteError(op Op, path string, err error) *SyncError {
	return &SyncError{Op: op, Path: path, Kind: ErrWrite, Err: err}
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *SyncError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsCancellation reports whether err stems from a cancelled or expired context
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
