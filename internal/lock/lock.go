// Package lock keeps two processes from mirroring into the same replica.
//
// Ownership is a small JSON file in a shared lock directory, named after
// the replica root. The file is created with O_EXCL so exactly one process
// wins a race; a file whose owner is gone is taken over.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// DefaultStaleAfter is how long a lock owned by another host is honoured.
// Owners on this host are probed instead.
const DefaultStaleAfter = 30 * time.Minute

// unreadableGrace is how long a lock file that cannot be decoded is left
// alone. A younger file may belong to a process still writing it.
const unreadableGrace = 10 * time.Second

var (
	// ErrHeld matches a *HeldError
	ErrHeld = errors.New("replica is locked by another process")

	// ErrStolen is returned by Release when the file now names another owner
	ErrStolen = errors.New("replica lock was taken over by another process")
)

// Owner describes the process holding a replica
type Owner struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	Since    time.Time `json:"since"`
	Source   string    `json:"source,omitempty"`
	Replica  string    `json:"replica"`
	Token    string    `json:"token"`
}

// HeldError reports the owner that prevented Acquire
type HeldError struct {
	Owner *Owner // nil if the lock file could not be decoded
}

func (e *HeldError) Error() string {
	if e.Owner == nil {
		return ErrHeld.Error()
	}
	return fmt.Sprintf("%s (pid %d on %s since %s, mirroring %s)",
		ErrHeld,
		e.Owner.PID,
		e.Owner.Hostname,
		e.Owner.Since.Format(time.RFC3339),
		e.Owner.Source,
	)
}

func (e *HeldError) Is(target error) bool {
	return target == ErrHeld
}

// ReplicaLock guards one replica root
type ReplicaLock struct {
	fs         afero.Fs
	path       string
	replica    string
	hostname   string
	staleAfter time.Duration

	mu   sync.Mutex
	held *Owner
}

// DefaultDir returns the directory used when no lock directory is configured
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(configDir, "mirrorsync", "locks"), nil
}

// FileName returns the lock file name for a replica root. Equivalent
// spellings of the same directory map to the same name.
func FileName(replica string) string {
	if abs, err := filepath.Abs(replica); err == nil {
		replica = abs
	}
	return fmt.Sprintf("replica-%016x.lock", xxhash.Sum64String(filepath.Clean(replica)))
}

// New creates the lock for replica inside dir, creating dir if needed.
// An empty dir selects DefaultDir.
func New(fs afero.Fs, dir, replica string) (*ReplicaLock, error) {
	if replica == "" {
		return nil, errors.New("replica cannot be empty")
	}

	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, _ := os.Hostname()
	return &ReplicaLock{
		fs:         fs,
		path:       filepath.Join(dir, FileName(replica)),
		replica:    replica,
		hostname:   hostname,
		staleAfter: DefaultStaleAfter,
	}, nil
}

// Path returns the lock file path
func (l *ReplicaLock) Path() string {
	return l.path
}

// Acquire takes ownership of the replica on behalf of source. It is a no-op
// if this lock already holds it and returns a *HeldError if a live owner
// exists.
func (l *ReplicaLock) Acquire(source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held != nil {
		return nil
	}

	now := time.Now()
	owner := &Owner{
		PID:      os.Getpid(),
		Hostname: l.hostname,
		Since:    now,
		Source:   source,
		Replica:  l.replica,
		Token:    fmt.Sprintf("%d-%d", os.Getpid(), now.UnixNano()),
	}

	// Further attempts follow the removal of a stale or abandoned file
	for attempt := 0; attempt < 3; attempt++ {
		err := l.create(owner)
		if err == nil {
			l.held = owner
			return nil
		}
		if !os.IsExist(err) {
			return err
		}

		existing, err := l.read()
		switch {
		case os.IsNotExist(err):
			continue
		case err != nil:
			if !l.abandoned() {
				return &HeldError{}
			}
		case !l.isStale(existing):
			return &HeldError{Owner: existing}
		}
		if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	existing, _ := l.read()
	return &HeldError{Owner: existing}
}

// Release gives the replica up. It returns ErrStolen if the lock file no
// longer names this owner, and leaves that file in place.
func (l *ReplicaLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		return nil
	}
	held := l.held
	l.held = nil

	existing, err := l.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if existing.Token != held.Token {
		return ErrStolen
	}

	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Owner returns the live owner of the replica, or nil if it is free
func (l *ReplicaLock) Owner() (*Owner, error) {
	owner, err := l.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if l.isStale(owner) {
		return nil, nil
	}
	return owner, nil
}

func (l *ReplicaLock) create(owner *Owner) error {
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(owner); err != nil {
		f.Close()
		l.fs.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		l.fs.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func (l *ReplicaLock) read() (*Owner, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, err
	}

	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", l.path, err)
	}
	return &owner, nil
}

// abandoned reports whether an undecodable lock file is old enough that its
// writer must have died before finishing it
func (l *ReplicaLock) abandoned() bool {
	info, err := l.fs.Stat(l.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > unreadableGrace
}

// isStale reports whether the owner is gone. On this host the process is
// probed; across hosts age is the only signal.
func (l *ReplicaLock) isStale(owner *Owner) bool {
	if owner.Hostname == l.hostname {
		return !processAlive(owner.PID)
	}
	return time.Since(owner.Since) > l.staleAfter
}
