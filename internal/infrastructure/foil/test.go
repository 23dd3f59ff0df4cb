package foil

import (
	"sort"

	"github.com/blackms/piecewise-go/internal/domain/relation"
)

// VarDomains constrains clause variables to candidate value sets. On a
// successful test the tested clause narrows every constrained variable to the
// single witness value that satisfied it.
type VarDomains map[int]map[int]bool

// Clone deep-copies the domains.
func (d VarDomains) Clone() VarDomains {
	c := make(VarDomains, len(d))
	for v, vals := range d {
		m := make(map[int]bool, len(vals))
		for k := range vals {
			m[k] = true
		}
		c[v] = m
	}
	return c
}

// Singleton builds a domain set holding one value.
func Singleton(v int) map[int]bool {
	return map[int]bool{v: true}
}

// TestClause reports whether the clause is satisfiable against rels under the
// given domains. On success, every variable present in domains is narrowed to
// its witness value.
func TestClause(c Clause, rels relation.Table, domains VarDomains) bool {
	binding := make(map[int]int)
	for v, vals := range domains {
		if len(vals) == 1 {
			for val := range vals {
				binding[v] = val
			}
		}
	}
	witness := satisfy(c, rels, domains, binding, 0)
	if witness == nil {
		return false
	}
	for v := range domains {
		if val, ok := witness[v]; ok {
			domains[v] = Singleton(val)
		}
	}
	return true
}

// TestClauseVec returns the index of the first satisfiable clause, narrowing
// domains to its witness, or -1 when no clause matches.
func TestClauseVec(cv ClauseVec, rels relation.Table, domains VarDomains) int {
	for i, c := range cv {
		trial := domains.Clone()
		if TestClause(c, rels, trial) {
			for v, vals := range trial {
				domains[v] = vals
			}
			return i
		}
	}
	return -1
}

// satisfy runs a backtracking search over the clause literals in order.
// Positive literals bind their free variables from matching tuples; negated
// literals are checked once all their variables are bound. It returns the
// satisfying binding, or nil.
func satisfy(c Clause, rels relation.Table, domains VarDomains, binding map[int]int, idx int) map[int]int {
	if idx == len(c) {
		// unconstrained domain variables not mentioned by any literal may
		// take any value in their domain
		for v, vals := range domains {
			if _, ok := binding[v]; !ok {
				if len(vals) == 0 {
					return nil
				}
				binding[v] = minKey(vals)
			}
		}
		return binding
	}

	l := c[idx]
	rel, ok := rels[l.Name]
	if !ok || rel.Arity() != len(l.Args) {
		if l.Negated {
			return satisfy(c, rels, domains, binding, idx+1)
		}
		return nil
	}

	if l.Negated {
		// all args must already be bound; a negated literal cannot introduce
		// variables
		for _, t := range rel.Tuples() {
			match := true
			for i, a := range l.Args {
				val, bound := binding[a]
				if !bound || val != t[i] {
					match = false
					break
				}
			}
			if match {
				return nil
			}
		}
		return satisfy(c, rels, domains, binding, idx+1)
	}

	for _, t := range rel.Tuples() {
		var added []int
		ok := true
		for i, a := range l.Args {
			if val, bound := binding[a]; bound {
				if val != t[i] {
					ok = false
					break
				}
				continue
			}
			if vals, constrained := domains[a]; constrained && !vals[t[i]] {
				ok = false
				break
			}
			binding[a] = t[i]
			added = append(added, a)
		}
		if ok {
			if res := satisfy(c, rels, domains, binding, idx+1); res != nil {
				return res
			}
		}
		for _, a := range added {
			delete(binding, a)
		}
	}
	return nil
}

func minKey(m map[int]bool) int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys[0]
}
