package mirror

import (
	"strings"
	"sync"
)

// Snapshot is the set of relative paths observed in one enumeration of the
// source tree. It is written by the enumerating goroutine only and read after
// the enumeration finished.
type Snapshot struct {
	paths map[string]struct{}

	// protected holds directories whose contents could not be enumerated;
	// replica entries below them are never considered orphaned.
	protected []string
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{paths: make(map[string]struct{})}
}

// Add records a relative path
func (s *Snapshot) Add(rel string) {
	s.paths[rel] = struct{}{}
}

// Protect marks rel and everything below it as present
func (s *Snapshot) Protect(rel string) {
	s.protected = append(s.protected, rel)
}

// Has reports whether rel was observed. A nil snapshot is empty.
func (s *Snapshot) Has(rel string) bool {
	if s == nil {
		return false
	}
	_, ok := s.paths[rel]
	return ok
}

// Covers reports whether rel must be kept in the replica
func (s *Snapshot) Covers(rel string) bool {
	if s == nil {
		return false
	}
	if s.Has(rel) {
		return true
	}
	for _, p := range s.protected {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// Len returns the number of recorded paths
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

// ProcessedSet holds absolute replica paths already acted upon during a
// cycle. It is shared by the copy workers and the deletion pass.
type ProcessedSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewProcessedSet creates an empty set
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{paths: make(map[string]struct{})}
}

// Add records an absolute path
func (p *ProcessedSet) Add(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths[path] = struct{}{}
}

// Has reports whether path was already acted upon
func (p *ProcessedSet) Has(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.paths[path]
	return ok
}
