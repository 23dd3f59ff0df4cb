// Package relation provides the relational store: named n-ary predicates over
// time-stamped object identifiers, with incremental add/delete and
// partial-tuple pattern matching. It is consumed by the FOIL learner and by
// the mode classifiers.
package relation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Wildcard matches any value in a pattern position.
const Wildcard = -1

// Tuple is one row of a relation. By convention the first position is a time
// index and the remaining positions are object identifiers.
type Tuple []int

func (t Tuple) key() string {
	var b strings.Builder
	for i, v := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// Clone returns a copy of the tuple.
func (t Tuple) Clone() Tuple {
	c := make(Tuple, len(t))
	copy(c, t)
	return c
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Relation is a set of equal-arity tuples. Iteration order is insertion
// order, which keeps every consumer deterministic.
type Relation struct {
	arity  int
	tuples []Tuple
	index  map[string]int
}

// New creates an empty relation of the given arity.
func New(arity int) *Relation {
	return &Relation{arity: arity, index: make(map[string]int)}
}

// Arity returns the tuple width.
func (r *Relation) Arity() int { return r.arity }

// Size returns the number of tuples.
func (r *Relation) Size() int { return len(r.tuples) }

// Empty reports whether the relation has no tuples.
func (r *Relation) Empty() bool { return len(r.tuples) == 0 }

// Add inserts a tuple built from a time index and the remaining positions.
// Duplicate tuples are ignored.
func (r *Relation) Add(time int, rest ...int) {
	t := make(Tuple, 0, len(rest)+1)
	t = append(t, time)
	t = append(t, rest...)
	r.AddTuple(t)
}

// AddTuple inserts a full tuple. Panics if the arity disagrees; tuples come
// from internal call sites that are supposed to know the schema.
func (r *Relation) AddTuple(t Tuple) {
	if len(t) != r.arity {
		panic(fmt.Sprintf("relation: tuple arity %d, want %d", len(t), r.arity))
	}
	k := t.key()
	if _, ok := r.index[k]; ok {
		return
	}
	r.index[k] = len(r.tuples)
	r.tuples = append(r.tuples, t.Clone())
}

// Del removes a tuple if present.
func (r *Relation) Del(time int, rest ...int) {
	t := make(Tuple, 0, len(rest)+1)
	t = append(t, time)
	t = append(t, rest...)
	k := t.key()
	i, ok := r.index[k]
	if !ok {
		return
	}
	delete(r.index, k)
	// preserve insertion order of the remaining tuples
	r.tuples = append(r.tuples[:i], r.tuples[i+1:]...)
	for j := i; j < len(r.tuples); j++ {
		r.index[r.tuples[j].key()] = j
	}
}

// Has reports whether the full tuple is present.
func (r *Relation) Has(t Tuple) bool {
	_, ok := r.index[t.key()]
	return ok
}

// Tuples returns the tuples in insertion order. The slice is shared; callers
// must not mutate it.
func (r *Relation) Tuples() []Tuple { return r.tuples }

// Match appends to out every tuple consistent with the pattern. Pattern
// positions holding Wildcard match anything; a short pattern leaves trailing
// positions unconstrained.
func (r *Relation) Match(pattern []int) *Relation {
	out := New(r.arity)
	for _, t := range r.tuples {
		ok := true
		for i, p := range pattern {
			if p != Wildcard && t[i] != p {
				ok = false
				break
			}
		}
		if ok {
			out.AddTuple(t)
		}
	}
	return out
}

// DropFirst returns the distinct projections of the tuples with the first
// (time) position removed, in first-seen order.
func (r *Relation) DropFirst() []Tuple {
	out := New(r.arity - 1)
	for _, t := range r.tuples {
		out.AddTuple(t[1:])
	}
	return out.tuples
}

// AtPos returns the sorted distinct values at position i.
func (r *Relation) AtPos(i int) []int {
	seen := make(map[int]bool)
	var vals []int
	for _, t := range r.tuples {
		if !seen[t[i]] {
			seen[t[i]] = true
			vals = append(vals, t[i])
		}
	}
	sort.Ints(vals)
	return vals
}

// Clone returns a deep copy.
func (r *Relation) Clone() *Relation {
	c := New(r.arity)
	for _, t := range r.tuples {
		c.AddTuple(t)
	}
	return c
}

func (r *Relation) String() string {
	parts := make([]string, len(r.tuples))
	for i, t := range r.tuples {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

type relationJSON struct {
	Arity  int     `json:"arity"`
	Tuples []Tuple `json:"tuples"`
}

// MarshalJSON encodes the relation as its arity and tuple list.
func (r *Relation) MarshalJSON() ([]byte, error) {
	return json.Marshal(relationJSON{Arity: r.arity, Tuples: r.tuples})
}

// UnmarshalJSON rebuilds the tuple index.
func (r *Relation) UnmarshalJSON(b []byte) error {
	var rj relationJSON
	if err := json.Unmarshal(b, &rj); err != nil {
		return err
	}
	r.arity = rj.Arity
	r.tuples = nil
	r.index = make(map[string]int)
	for _, t := range rj.Tuples {
		r.AddTuple(t)
	}
	return nil
}
