package foil

import (
	"math/rand"
	"testing"

	"github.com/blackms/piecewise-go/internal/domain/relation"
)

func TestClauseString(t *testing.T) {
	c := Clause{
		{Name: "touching", Args: []int{0, 1, 2}},
		{Name: "heavy", Args: []int{2}, Negated: true},
	}
	want := "touching(v0,v1,v2) & ~heavy(v2)"
	if got := c.String(); got != want {
		t.Fatalf("String() = %q, expected %q", got, want)
	}
}

func TestTestClauseBindsAndNarrows(t *testing.T) {
	rels := relation.Table{"touching": relation.New(3)}
	rels["touching"].Add(3, 1, 5)
	rels["touching"].Add(4, 1, 6)

	c := Clause{{Name: "touching", Args: []int{0, 1, 2}}}
	domains := VarDomains{
		0: Singleton(3),
		1: Singleton(1),
		2: {5: true, 6: true},
	}
	if !TestClause(c, rels, domains) {
		t.Fatal("satisfiable clause rejected")
	}
	if len(domains[2]) != 1 || !domains[2][5] {
		t.Fatalf("domain not narrowed to witness: %v", domains[2])
	}
}

func TestTestClauseNegatedLiteral(t *testing.T) {
	rels := relation.Table{
		"touching": relation.New(3),
		"heavy":    relation.New(1),
	}
	rels["touching"].Add(3, 1, 5)
	rels["touching"].Add(3, 1, 6)
	rels["heavy"].AddTuple(relation.Tuple{5})

	c := Clause{
		{Name: "touching", Args: []int{0, 1, 2}},
		{Name: "heavy", Args: []int{2}, Negated: true},
	}
	domains := VarDomains{0: Singleton(3), 1: Singleton(1)}
	if !TestClause(c, rels, domains) {
		t.Fatal("expected backtracking past the heavy object")
	}

	// with only the heavy object available the clause must fail
	rels2 := relation.Table{
		"touching": relation.New(3),
		"heavy":    relation.New(1),
	}
	rels2["touching"].Add(3, 1, 5)
	rels2["heavy"].AddTuple(relation.Tuple{5})
	domains2 := VarDomains{0: Singleton(3), 1: Singleton(1)}
	if TestClause(c, rels2, domains2) {
		t.Fatal("clause satisfied although every binding violates the negation")
	}
}

func TestTestClauseVecFirstMatch(t *testing.T) {
	rels := relation.Table{"on": relation.New(2)}
	rels["on"].Add(0, 9)

	never := Clause{{Name: "off", Args: []int{0, 1}}}
	matches := Clause{{Name: "on", Args: []int{0, 1}}}
	cv := ClauseVec{never, matches}

	domains := VarDomains{0: Singleton(0)}
	if got := TestClauseVec(cv, rels, domains); got != 1 {
		t.Fatalf("TestClauseVec = %d, expected 1", got)
	}
}

// Positive examples are the times the target touches object 2; FOIL should
// recover that single literal.
func TestLearnSeparatesByRelation(t *testing.T) {
	pos := relation.New(2)
	neg := relation.New(2)
	rels := relation.Table{"touching": relation.New(3)}

	for time := 0; time < 20; time++ {
		if time%2 == 0 {
			pos.Add(time, 1)
			rels["touching"].Add(time, 1, 2)
		} else {
			neg.Add(time, 1)
		}
	}

	f := New(pos, neg, rels, DefaultConfig(), rand.New(rand.NewSource(1)))
	clauses, residuals, ok := f.Learn()
	if !ok {
		t.Fatalf("induction left positives uncovered; clauses: %v", clauses)
	}
	if len(clauses) == 0 {
		t.Fatal("no clauses learned")
	}
	if len(residuals) != len(clauses)+1 {
		t.Fatalf("got %d residuals for %d clauses", len(residuals), len(clauses))
	}
	for i, r := range residuals[:len(clauses)] {
		if !r.Empty() {
			t.Fatalf("clause %d has false positives: %v", i, r.Tuples())
		}
	}
	if !residuals[len(residuals)-1].Empty() {
		t.Fatal("false negative residual not empty")
	}

	// every positive is covered, no negative is
	for _, tu := range pos.Tuples() {
		if !f.covers(clauses[0], tu) {
			t.Fatalf("positive %v not covered", tu)
		}
	}
	for _, tu := range neg.Tuples() {
		covered := false
		for _, c := range clauses {
			if f.covers(c, tu) {
				covered = true
			}
		}
		if covered {
			t.Fatalf("negative %v covered", tu)
		}
	}
}

func TestLearnNoNegatives(t *testing.T) {
	pos := relation.New(2)
	pos.Add(0, 1)
	neg := relation.New(2)

	f := New(pos, neg, relation.Table{}, DefaultConfig(), rand.New(rand.NewSource(1)))
	clauses, residuals, ok := f.Learn()
	if !ok {
		t.Fatal("trivial problem should succeed")
	}
	if len(clauses) != 0 {
		t.Fatalf("expected no clauses without negatives, got %v", clauses)
	}
	if len(residuals) != 1 || !residuals[0].Empty() {
		t.Fatalf("unexpected residuals: %v", residuals)
	}
}
