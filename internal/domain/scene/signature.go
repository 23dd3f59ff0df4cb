// Package scene provides scene signature domain types. A signature is the
// ordered schema describing which objects, and which properties per object,
// compose a flattened feature vector.
package scene

import (
	"github.com/blackms/piecewise-go/internal/shared"
)

// Entry describes one object inside a signature: a stable object id, a type
// tag, a display name, the ordered property names, and the starting offset of
// the object's property block within the flattened feature vector.
type Entry struct {
	ID    int      `json:"id"`
	Type  string   `json:"type"`
	Name  string   `json:"name"`
	Props []string `json:"props"`
	Start int      `json:"start"`
}

// Width returns the number of feature columns the entry occupies.
func (e Entry) Width() int {
	return len(e.Props)
}

// same reports whether two entries describe the same object schema. Offsets
// are derived state and do not participate.
func (e Entry) same(o Entry) bool {
	if e.Name != o.Name || e.Type != o.Type || len(e.Props) != len(o.Props) {
		return false
	}
	for i := range e.Props {
		if e.Props[i] != o.Props[i] {
			return false
		}
	}
	return true
}

// Signature is an ordered sequence of entries. Entries are kept consistent
// with the vector layout: offsets are monotonically non-decreasing and
// non-overlapping.
type Signature struct {
	Entries []Entry `json:"entries"`
}

// Len returns the number of objects in the signature.
func (s *Signature) Len() int {
	return len(s.Entries)
}

// Empty reports whether the signature has no entries.
func (s *Signature) Empty() bool {
	return len(s.Entries) == 0
}

// Dim returns the total width of the flattened feature vector.
func (s *Signature) Dim() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Width()
	}
	return n
}

// Add appends an entry, recomputing its start offset from the current layout.
func (s *Signature) Add(e Entry) {
	e.Start = s.Dim()
	s.Entries = append(s.Entries, e)
}

// Equal reports whether two signatures have the same entry sequence
// (name, type and properties). Equality is the key used to bucket
// observations for the fallback LWR models.
func (s *Signature) Equal(o *Signature) bool {
	if len(s.Entries) != len(o.Entries) {
		return false
	}
	for i := range s.Entries {
		if !s.Entries[i].same(o.Entries[i]) {
			return false
		}
	}
	return true
}

// FindID returns the position of the entry with the given object id, or -1.
func (s *Signature) FindID(id int) int {
	for i, e := range s.Entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (s *Signature) Clone() *Signature {
	c := &Signature{Entries: make([]Entry, len(s.Entries))}
	copy(c.Entries, s.Entries)
	for i := range c.Entries {
		props := make([]string, len(s.Entries[i].Props))
		copy(props, s.Entries[i].Props)
		c.Entries[i].Props = props
	}
	return c
}

// Validate checks the layout invariant: entry offsets must form a contiguous,
// non-overlapping cover of [0, Dim).
func (s *Signature) Validate() error {
	next := 0
	for i, e := range s.Entries {
		if e.Start != next {
			return shared.Invariantf("entry %d (%s) starts at %d, want %d", i, e.Name, e.Start, next)
		}
		next += e.Width()
	}
	return nil
}
