package revset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strata-vcs/strata/internal/changeset"
)

func TestSetInsertionOrder(t *testing.T) {
	s := NewSet("c", "a", "b")
	assert.Equal(t, []changeset.ID{"c", "a", "b"}, s.IDs())
}

func TestSetAddDeduplicates(t *testing.T) {
	s := NewSet("a")
	s.Add("b")
	s.Add("a")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []changeset.ID{"a", "b"}, s.IDs())
}

func TestSetContains(t *testing.T) {
	s := NewSet("a", "b")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))
}

func TestSetLast(t *testing.T) {
	s := NewSet("a", "b", "c")
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, changeset.ID("c"), last)

	_, ok = NewSet().Last()
	assert.False(t, ok)
}

func TestSetDifferenceKeepsLeftOrder(t *testing.T) {
	left := NewSet("a", "b", "c", "d")
	right := NewSet("b", "d")
	diff := left.Difference(right)
	assert.Equal(t, []changeset.ID{"a", "c"}, diff.IDs())
}

func TestSetUnion(t *testing.T) {
	u := NewSet("a", "b").Union(NewSet("b", "c"))
	assert.Equal(t, []changeset.ID{"a", "b", "c"}, u.IDs())
}

func TestSetIsEmpty(t *testing.T) {
	assert.True(t, NewSet().IsEmpty())
	assert.False(t, NewSet("a").IsEmpty())
}
