package revset

import (
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/strata-vcs/strata/internal/changeset"
)

// Set is an insertion-ordered, deduplicating set of changeset IDs.
// The zero value is not usable; call NewSet.
type Set struct {
	inner *linkedhashset.Set
}

// NewSet builds a set from the given IDs, preserving first-seen order.
func NewSet(ids ...changeset.ID) *Set {
	s := &Set{inner: linkedhashset.New()}
	for _, id := range ids {
		s.inner.Add(string(id))
	}
	return s
}

// Add inserts an ID; duplicates are ignored.
func (s *Set) Add(id changeset.ID) {
	s.inner.Add(string(id))
}

// Contains reports membership.
func (s *Set) Contains(id changeset.ID) bool {
	return s.inner.Contains(string(id))
}

// Len returns the number of members.
func (s *Set) Len() int {
	return s.inner.Size()
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.inner.Empty()
}

// IDs returns the members in insertion order.
func (s *Set) IDs() []changeset.ID {
	values := s.inner.Values()
	out := make([]changeset.ID, 0, len(values))
	for _, v := range values {
		out = append(out, changeset.ID(v.(string)))
	}
	return out
}

// Last returns the most recently inserted member.
func (s *Set) Last() (changeset.ID, bool) {
	ids := s.IDs()
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}

// Difference returns a new set of members of s not in other, keeping
// s's order.
func (s *Set) Difference(other *Set) *Set {
	out := NewSet()
	for _, id := range s.IDs() {
		if !other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Union returns a new set with members of both, s's members first.
func (s *Set) Union(other *Set) *Set {
	out := NewSet(s.IDs()...)
	for _, id := range other.IDs() {
		out.Add(id)
	}
	return out
}

func (s *Set) String() string {
	ids := s.IDs()
	short := make([]string, len(ids))
	for i, id := range ids {
		short[i] = id.Short()
	}
	return "{" + strings.Join(short, " ") + "}"
}
