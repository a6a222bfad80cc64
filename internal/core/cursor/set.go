package cursor

import (
	"errors"
	"fmt"
	"math"

	"github.com/vietddude/logindex/internal/core/domain"
)

var (
	// ErrUnknownLog is returned when advancing a log that has no cursor.
	ErrUnknownLog = errors.New("unknown log")

	// ErrCursorOverflow is returned when Max would pass the uint32 range.
	ErrCursorOverflow = errors.New("cursor overflow")

	// ErrCursorRegression is returned when Put would move Max backwards.
	ErrCursorRegression = errors.New("cursor regression")
)

// Set maps log ids to cursors, remembering insertion order.
// It is not safe for concurrent use; the run loop owns it.
type Set struct {
	order   []domain.LogID
	cursors map[domain.LogID]*domain.Cursor
}

// Len returns the number of cursors.
func (s *Set) Len() int {
	return len(s.order)
}

// Get returns a copy of the cursor for id.
func (s *Set) Get(id domain.LogID) (domain.Cursor, bool) {
	c, ok := s.cursors[id]
	if !ok {
		return domain.Cursor{}, false
	}
	return *c, true
}

// Ensure returns the cursor for id, inserting {0, 0} at the end if absent.
func (s *Set) Ensure(id domain.LogID) domain.Cursor {
	if c, ok := s.cursors[id]; ok {
		return *c
	}
	c := &domain.Cursor{LogID: id}
	s.cursors[id] = c
	s.order = append(s.order, id)
	return *c
}

// Put inserts or replaces a cursor. Existing cursors may only move forward.
func (s *Set) Put(c domain.Cursor) error {
	if cur, ok := s.cursors[c.LogID]; ok {
		if c.Max < cur.Max {
			return fmt.Errorf("%w: log %s at %d, got %d", ErrCursorRegression, c.LogID.Short(), cur.Max, c.Max)
		}
		*cur = c
		return nil
	}
	cp := c
	s.cursors[c.LogID] = &cp
	s.order = append(s.order, c.LogID)
	return nil
}

// Advance moves the cursor of id forward by n entries and returns the new Max.
func (s *Set) Advance(id domain.LogID, n uint32) (uint32, error) {
	c, ok := s.cursors[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLog, id.Short())
	}
	if uint64(c.Max)+uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: log %s at %d + %d", ErrCursorOverflow, id.Short(), c.Max, n)
	}
	c.Max += n
	return c.Max, nil
}

// Cursors returns copies of all cursors in insertion order.
func (s *Set) Cursors() []domain.Cursor {
	out := make([]domain.Cursor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.cursors[id])
	}
	return out
}

// Indexed returns the sum of Max over all cursors.
func (s *Set) Indexed() uint64 {
	var total uint64
	for _, c := range s.cursors {
		total += uint64(c.Max)
	}
	return total
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	out := NewSet()
	for _, id := range s.order {
		c := *s.cursors[id]
		out.cursors[id] = &c
		out.order = append(out.order, id)
	}
	return out
}

// Equal reports whether both sets hold the same cursors in the same order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, id := range s.order {
		if other.order[i] != id {
			return false
		}
		if *s.cursors[id] != *other.cursors[id] {
			return false
		}
	}
	return true
}
