// Package foil provides a First-Order Inductive Learner: greedy induction of
// Horn-clause disjunctions that separate positive from negative example
// tuples over a relation table.
package foil

import (
	"fmt"
	"strings"
)

// Literal is one condition inside a clause: a predicate name applied to
// variable ids, optionally negated. Variable ids below the example arity are
// bound to example tuple positions; higher ids are existentially quantified.
type Literal struct {
	Name    string `json:"name"`
	Args    []int  `json:"args"`
	Negated bool   `json:"negated"`
}

func (l Literal) String() string {
	args := make([]string, len(l.Args))
	for i, a := range l.Args {
		args[i] = fmt.Sprintf("v%d", a)
	}
	s := l.Name + "(" + strings.Join(args, ",") + ")"
	if l.Negated {
		return "~" + s
	}
	return s
}

func (l Literal) equal(o Literal) bool {
	if l.Name != o.Name || l.Negated != o.Negated || len(l.Args) != len(o.Args) {
		return false
	}
	for i := range l.Args {
		if l.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// maxVar returns the highest variable id in the literal.
func (l Literal) maxVar() int {
	m := -1
	for _, a := range l.Args {
		if a > m {
			m = a
		}
	}
	return m
}

// Clause is a conjunction of literals.
type Clause []Literal

func (c Clause) String() string {
	if len(c) == 0 {
		return "true"
	}
	parts := make([]string, len(c))
	for i, l := range c {
		parts[i] = l.String()
	}
	return strings.Join(parts, " & ")
}

// numVars returns one past the highest variable id used by the clause, at
// least initVars.
func (c Clause) numVars(initVars int) int {
	n := initVars
	for _, l := range c {
		if m := l.maxVar() + 1; m > n {
			n = m
		}
	}
	return n
}

// ClauseVec is an ordered disjunction of clauses.
type ClauseVec []Clause

func (cv ClauseVec) String() string {
	parts := make([]string, len(cv))
	for i, c := range cv {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}
