package foil

import (
	"math"
	"math/rand"

	"github.com/blackms/piecewise-go/internal/domain/relation"
)

// Config carries the induction thresholds.
type Config struct {
	// GrowRatio is the fraction of examples used to grow clauses; the
	// remainder is held out for pruning.
	GrowRatio float64 `json:"growRatio"`

	// MinSuccessRate is the minimum fraction of clause matches that must be
	// positive examples for the clause to be accepted.
	MinSuccessRate float64 `json:"minSuccessRate"`

	// MaxClauseLen bounds the number of literals per clause.
	MaxClauseLen int `json:"maxClauseLen"`

	// MaxClauses bounds the disjunction length.
	MaxClauses int `json:"maxClauses"`
}

// DefaultConfig returns the default induction thresholds.
func DefaultConfig() Config {
	return Config{
		GrowRatio:      0.75,
		MinSuccessRate: 0.9,
		MaxClauseLen:   5,
		MaxClauses:     8,
	}
}

// FOIL induces a clause vector separating pos from neg example tuples, using
// the relation table as background knowledge.
type FOIL struct {
	pos, neg *relation.Relation
	rels     relation.Table
	cfg      Config
	rng      *rand.Rand
	initVars int
}

// New creates a learner. pos and neg must share one arity; that arity fixes
// the number of bound variables (variable i binds tuple position i).
func New(pos, neg *relation.Relation, rels relation.Table, cfg Config, rng *rand.Rand) *FOIL {
	return &FOIL{pos: pos, neg: neg, rels: rels, cfg: cfg, rng: rng, initVars: pos.Arity()}
}

// binding is one partial proof: the index of the originating example plus
// the values bound to variables 0..len(vals)-1.
type binding struct {
	ex   int
	vals []int
}

// Learn runs the greedy induction. It returns the clause vector and, in
// parallel, the residual relations: for each clause its false positives
// (negative examples the clause matches), plus one final relation holding the
// false negatives of the whole vector. ok is true when every positive is
// covered.
func (f *FOIL) Learn() (ClauseVec, []*relation.Relation, bool) {
	posT := f.pos.Tuples()
	negT := f.neg.Tuples()

	// without negatives every positive is vacuously covered
	if len(negT) == 0 {
		return nil, []*relation.Relation{relation.New(f.pos.Arity())}, true
	}

	var clauses ClauseVec
	if len(posT) > 0 {
		growPos, testPos := f.split(posT)
		growNeg, testNeg := f.split(negT)

		remaining := append([]relation.Tuple(nil), growPos...)
		for len(remaining) > 0 && len(clauses) < f.cfg.MaxClauses {
			c, ok := f.growClause(remaining, growNeg)
			if !ok {
				break
			}
			c = f.prune(c, testPos, testNeg)
			var rest []relation.Tuple
			covered := 0
			for _, t := range remaining {
				if f.covers(c, t) {
					covered++
				} else {
					rest = append(rest, t)
				}
			}
			if covered == 0 {
				break
			}
			clauses = append(clauses, c)
			remaining = rest
		}
	}

	residuals := make([]*relation.Relation, 0, len(clauses)+1)
	for _, c := range clauses {
		fp := relation.New(f.neg.Arity())
		for _, t := range negT {
			if f.covers(c, t) {
				fp.AddTuple(t)
			}
		}
		residuals = append(residuals, fp)
	}
	fn := relation.New(f.pos.Arity())
	for _, t := range posT {
		matched := false
		for _, c := range clauses {
			if f.covers(c, t) {
				matched = true
				break
			}
		}
		if !matched {
			fn.AddTuple(t)
		}
	}
	residuals = append(residuals, fn)
	return clauses, residuals, fn.Empty()
}

// covers reports whether the clause matches an example tuple: positions bind
// variables 0..initVars-1, remaining clause variables are existential.
func (f *FOIL) covers(c Clause, t relation.Tuple) bool {
	domains := make(VarDomains, f.initVars)
	for i, v := range t {
		domains[i] = Singleton(v)
	}
	return TestClause(c, f.rels, domains)
}

// growClause builds one clause by repeatedly adding the literal with maximal
// information gain until the negatives are excluded, the clause length cap is
// hit, or no literal helps.
func (f *FOIL) growClause(pos []relation.Tuple, neg []relation.Tuple) (Clause, bool) {
	pbind := makeBindings(pos)
	nbind := makeBindings(neg)
	nvars := f.initVars

	var c Clause
	for len(nbind) > 0 && len(c) < f.cfg.MaxClauseLen {
		best, bestGain, bestVars := Literal{}, 0.0, nvars
		var bestP, bestN []binding
		for _, cand := range f.candidates(c, nvars) {
			p1 := f.extend(pbind, cand, nvars)
			if len(p1) == 0 {
				continue
			}
			n1 := f.extend(nbind, cand, nvars)
			g := gain(pbind, nbind, p1, n1)
			if g > bestGain {
				best = cand
				bestGain = g
				bestP, bestN = p1, n1
				bestVars = c.numVars(f.initVars)
				if m := cand.maxVar() + 1; m > bestVars {
					bestVars = m
				}
			}
		}
		if bestGain <= 0 {
			break
		}
		c = append(c, best)
		pbind, nbind = bestP, bestN
		nvars = bestVars
	}
	if len(c) == 0 {
		return nil, false
	}
	posCov := distinctExamples(pbind)
	negCov := distinctExamples(nbind)
	rate := 1.0
	if posCov+negCov > 0 {
		rate = float64(posCov) / float64(posCov+negCov)
	}
	return c, len(nbind) == 0 || rate >= f.cfg.MinSuccessRate
}

// prune drops literals, last to first, whenever removal does not hurt the
// success rate or the positive coverage on the held-out split.
func (f *FOIL) prune(c Clause, testPos, testNeg []relation.Tuple) Clause {
	rate, cov := f.rate(c, testPos, testNeg)
	for i := len(c) - 1; i >= 0 && len(c) > 1; i-- {
		trimmed := make(Clause, 0, len(c)-1)
		trimmed = append(trimmed, c[:i]...)
		trimmed = append(trimmed, c[i+1:]...)
		r, cv := f.rate(trimmed, testPos, testNeg)
		if r >= rate && cv >= cov {
			c = trimmed
			rate, cov = r, cv
		}
	}
	return c
}

// rate returns the success rate of a clause over held-out examples along with
// its positive coverage.
func (f *FOIL) rate(c Clause, pos, neg []relation.Tuple) (float64, int) {
	pc, nc := 0, 0
	for _, t := range pos {
		if f.covers(c, t) {
			pc++
		}
	}
	for _, t := range neg {
		if f.covers(c, t) {
			nc++
		}
	}
	if pc+nc == 0 {
		return 0, 0
	}
	return float64(pc) / float64(pc+nc), pc
}

// candidates enumerates the literals that may extend a clause with nvars
// variables: every relation applied to any argument tuple drawing on existing
// variables, plus canonical new variables for positive literals. Negated
// literals may only use existing variables.
func (f *FOIL) candidates(c Clause, nvars int) []Literal {
	var out []Literal
	for _, name := range f.rels.Names() {
		arity := f.rels[name].Arity()
		args := make([]int, arity)
		f.enumArgs(name, args, 0, nvars, nvars, c, &out)
	}
	return out
}

func (f *FOIL) enumArgs(name string, args []int, pos, nvars, nextNew int, c Clause, out *[]Literal) {
	if pos == len(args) {
		hasOld := false
		allOld := true
		for _, a := range args {
			if a < nvars {
				hasOld = true
			} else {
				allOld = false
			}
		}
		if !hasOld {
			return
		}
		l := Literal{Name: name, Args: append([]int(nil), args...)}
		if !clauseHas(c, l) {
			*out = append(*out, l)
		}
		if allOld {
			ln := Literal{Name: name, Args: append([]int(nil), args...), Negated: true}
			if !clauseHas(c, ln) {
				*out = append(*out, ln)
			}
		}
		return
	}
	for v := 0; v < nvars; v++ {
		args[pos] = v
		f.enumArgs(name, args, pos+1, nvars, nextNew, c, out)
	}
	// one canonical fresh variable per position keeps the space finite
	args[pos] = nextNew
	f.enumArgs(name, args, pos+1, nvars, nextNew+1, c, out)
}

func clauseHas(c Clause, l Literal) bool {
	for _, x := range c {
		if x.equal(l) {
			return true
		}
	}
	return false
}

// extend joins the bindings with the literal against the relation table.
func (f *FOIL) extend(bs []binding, l Literal, nvars int) []binding {
	rel, ok := f.rels[l.Name]
	if !ok || rel.Arity() != len(l.Args) {
		if l.Negated {
			return bs
		}
		return nil
	}
	width := nvars
	if m := l.maxVar() + 1; m > width {
		width = m
	}

	var out []binding
	for _, b := range bs {
		if l.Negated {
			if !matchesAny(rel, l, b.vals) {
				out = append(out, b)
			}
			continue
		}
		for _, t := range rel.Tuples() {
			vals := make([]int, width)
			copy(vals, b.vals)
			for i := len(b.vals); i < width; i++ {
				vals[i] = -1
			}
			ok := true
			for i, a := range l.Args {
				if vals[a] == -1 {
					vals[a] = t[i]
				} else if vals[a] != t[i] {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, binding{ex: b.ex, vals: vals})
			}
		}
	}
	return out
}

func matchesAny(rel *relation.Relation, l Literal, vals []int) bool {
	for _, t := range rel.Tuples() {
		ok := true
		for i, a := range l.Args {
			if a >= len(vals) || vals[a] != t[i] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// gain is the standard FOIL weighted information gain.
func gain(p0, n0, p1, n1 []binding) float64 {
	if len(p1) == 0 {
		return 0
	}
	i0 := -math.Log2(float64(len(p0)) / float64(len(p0)+len(n0)))
	i1 := -math.Log2(float64(len(p1)) / float64(len(p1)+len(n1)))

	// count positives that survive the literal
	surviving := make(map[int]bool)
	for _, b := range p1 {
		surviving[b.ex] = true
	}
	return float64(len(surviving)) * (i0 - i1)
}

func makeBindings(ts []relation.Tuple) []binding {
	out := make([]binding, len(ts))
	for i, t := range ts {
		out[i] = binding{ex: i, vals: append([]int(nil), t...)}
	}
	return out
}

func distinctExamples(bs []binding) int {
	seen := make(map[int]bool)
	for _, b := range bs {
		seen[b.ex] = true
	}
	return len(seen)
}

// split partitions examples into grow and prune sets. Small example sets use
// everything for both.
func (f *FOIL) split(ts []relation.Tuple) (grow, test []relation.Tuple) {
	if len(ts) < 4 {
		return ts, ts
	}
	idx := f.rng.Perm(len(ts))
	ngrow := int(f.cfg.GrowRatio * float64(len(ts)))
	if ngrow < 1 {
		ngrow = 1
	}
	for i, j := range idx {
		if i < ngrow {
			grow = append(grow, ts[j])
		} else {
			test = append(test, ts[j])
		}
	}
	return grow, test
}
