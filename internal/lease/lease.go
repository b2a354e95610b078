// Package lease tracks short-lived edit leases. A field with a live lease
// is being edited locally, so remote loads must not overwrite it.
package lease

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long an edit holds its field when none is configured.
const DefaultTTL = 2 * time.Second

// Lease is one field's edit lease.
type Lease struct {
	Field     string    `json:"field"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Set holds the leases for one editing session.
type Set struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	leases map[string]time.Time
}

// New creates an empty lease set.
func New(ttl time.Duration) *Set {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Set{ttl: ttl, now: time.Now, leases: make(map[string]time.Time)}
}

// SetClock replaces the time source.
func (s *Set) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Key joins a section and a field into a lease key.
func Key(section, field string) string {
	return section + "." + field
}

// Take starts or extends a lease on each field.
func (s *Set) Take(fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := s.now().Add(s.ttl)
	for _, f := range fields {
		s.leases[f] = exp
	}
}

// Held reports whether field has an unexpired lease. Expired leases are
// dropped on the way.
func (s *Set) Held(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.leases[field]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(s.leases, field)
		return false
	}
	return true
}

// HeldIn returns the unexpired leased field names under section, without
// the section prefix.
func (s *Set) HeldIn(section string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := section + "."
	now := s.now()
	var out []string
	for f, exp := range s.leases {
		if !now.Before(exp) {
			delete(s.leases, f)
			continue
		}
		if name, ok := strings.CutPrefix(f, prefix); ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Active lists unexpired leases ordered by field.
func (s *Set) Active() []Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Lease, 0, len(s.leases))
	for f, exp := range s.leases {
		if !now.Before(exp) {
			delete(s.leases, f)
			continue
		}
		out = append(out, Lease{Field: f, ExpiresAt: exp})
	}
	slices.SortFunc(out, func(a, b Lease) int { return strings.Compare(a.Field, b.Field) })
	return out
}

// Release drops field's lease.
func (s *Set) Release(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, field)
}

// Clear drops every lease.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.leases)
}
