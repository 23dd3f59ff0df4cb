package relation

import "sort"

// Table maps predicate names to relations.
type Table map[string]*Relation

// Names returns the predicate names in sorted order.
func (tb Table) Names() []string {
	names := make([]string, 0, len(tb))
	for name := range tb {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge folds a single-time-step snapshot into the cumulative table. Tuples
// in the snapshot all share one timestamp in their first position; it is
// projected out and the remainder re-added under the supplied time index.
func (tb Table) Merge(snapshot Table, time int) {
	for name, r := range snapshot {
		cur, ok := tb[name]
		if !ok {
			tb[name] = New(r.Arity())
			cur = tb[name]
		}
		for _, rest := range r.DropFirst() {
			t := make(Tuple, 0, len(rest)+1)
			t = append(t, time)
			t = append(t, rest...)
			cur.AddTuple(t)
		}
	}
}

// Clone returns a deep copy of the table.
func (tb Table) Clone() Table {
	c := make(Table, len(tb))
	for name, r := range tb {
		c[name] = r.Clone()
	}
	return c
}
