// Package binaryset implements the content-addressed binary set described in
// section 3 of the design specification: a byte-equality set over byte
// buffers with no duplicate and no empty members.
package binaryset

import "sort"

// Set is an unordered collection of distinct, non-empty byte slices,
// compared by byte-sequence equality.
//
// Example:
//
//	s := binaryset.New()
//	s.Add([]byte("a"))
//	s.Add([]byte("a")) // no-op, already present
//	s.Len() // 1
type Set struct {
	members map[string][]byte
}

// New creates an empty Set.
func New() *Set {
	return &Set{members: make(map[string][]byte)}
}

// FromSlice builds a Set from a slice of byte buffers, silently dropping
// empty members per the empty-handling policy in section 3.
func FromSlice(bufs [][]byte) *Set {
	s := New()
	for _, b := range bufs {
		s.Add(b)
	}
	return s
}

// Add inserts a byte buffer. Empty buffers are rejected.
func (s *Set) Add(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	key := string(b)
	if _, ok := s.members[key]; ok {
		return false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	s.members[key] = cp
	return true
}

// Contains reports whether b is a member of s.
func (s *Set) Contains(b []byte) bool {
	_, ok := s.members[string(b)]
	return ok
}

// Remove deletes b from s, if present.
func (s *Set) Remove(b []byte) {
	delete(s.members, string(b))
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.members)
}

// Slice returns the members in a stable, sorted byte order. Stability makes
// round-trip tests and snapshot comparisons deterministic even though the
// set itself is unordered.
func (s *Set) Slice() [][]byte {
	out := make([][]byte, 0, len(s.members))
	for _, b := range s.members {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i]) < string(out[j])
	})
	return out
}

// Equal reports whether s and other contain exactly the same members.
func (s *Set) Equal(other *Set) bool {
	if other == nil || len(s.members) != len(other.members) {
		return false
	}
	for k := range s.members {
		if _, ok := other.members[k]; !ok {
			return false
		}
	}
	return true
}
