// Package tld maintains the allow-list of known top-level domains used
// by email validation. The list is loaded before first use and swapped
// wholesale on refresh, so readers never block.
package tld

import (
	"strings"
	"sync/atomic"
)

// Store holds an immutable snapshot of uppercase TLD names. Reads are
// lock-free; Replace installs a new snapshot atomically.
type Store struct {
	snapshot atomic.Pointer[map[string]struct{}]
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	s := &Store{}
	empty := make(map[string]struct{})
	s.snapshot.Store(&empty)
	return s
}

// Replace installs the given TLD names as the new snapshot.
func (s *Store) Replace(names []string) {
	next := make(map[string]struct{}, len(names))
	for _, name := range names {
		trimmed := strings.ToUpper(strings.TrimSpace(name))
		if trimmed == "" {
			continue
		}
		next[trimmed] = struct{}{}
	}
	s.snapshot.Store(&next)
}

// Contains reports whether the TLD is in the current snapshot. The
// comparison is case-insensitive.
func (s *Store) Contains(name string) bool {
	if s == nil {
		return false
	}
	current := s.snapshot.Load()
	if current == nil {
		return false
	}
	_, ok := (*current)[strings.ToUpper(strings.TrimSpace(name))]
	return ok
}

// Len returns the number of TLDs in the current snapshot.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	current := s.snapshot.Load()
	if current == nil {
		return 0
	}
	return len(*current)
}
