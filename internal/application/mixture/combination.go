package mixture

// assignmentGenerator enumerates assignments of candidate values to slots,
// odometer style: one candidate list per slot, optionally rejecting
// assignments that reuse a value. It is restartable and produces a finite
// sequence bounded by the product of the per-slot candidate counts.
type assignmentGenerator struct {
	elems       [][]int
	indices     []int
	allowRepeat bool
	finished    bool
	empty       bool
}

func newAssignmentGenerator(elems [][]int, allowRepeat bool) *assignmentGenerator {
	g := &assignmentGenerator{
		elems:       elems,
		indices:     make([]int, len(elems)),
		allowRepeat: allowRepeat,
	}
	if len(elems) == 0 {
		g.empty = true
	}
	for _, e := range elems {
		if len(e) == 0 {
			g.empty = true
			break
		}
	}
	return g
}

// Reset rewinds the generator to the first assignment.
func (g *assignmentGenerator) Reset() {
	g.finished = false
	for i := range g.indices {
		g.indices[i] = 0
	}
}

// Next fills comb with the next assignment and reports whether one was
// produced. comb must have len(elems) capacity.
func (g *assignmentGenerator) Next(comb []int) bool {
	if g.empty {
		return false
	}
	seen := make(map[int]bool, len(g.elems))
	for !g.finished {
		repeat := false
		for k := range seen {
			delete(seen, k)
		}
		for i, e := range g.elems {
			comb[i] = e[g.indices[i]]
			if !g.allowRepeat {
				if seen[comb[i]] {
					repeat = true
					break
				}
				seen[comb[i]] = true
			}
		}
		g.increment(0)
		if g.allowRepeat || !repeat {
			return true
		}
	}
	return false
}

func (g *assignmentGenerator) increment(i int) {
	if i >= len(g.elems) {
		g.finished = true
		return
	}
	g.indices[i]++
	if g.indices[i] >= len(g.elems[i]) {
		g.indices[i] = 0
		g.increment(i + 1)
	}
}
