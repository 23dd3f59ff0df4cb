package mixture

import (
	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	"github.com/blackms/piecewise-go/internal/infrastructure/foil"
	"github.com/blackms/piecewise-go/internal/infrastructure/lda"
)

// pairClassifier decides between two modes for a novel point. Horn clauses
// over the scene's relations decide first; numeric discriminants mop up the
// examples the clauses got wrong; constVote breaks everything else.
type pairClassifier struct {
	ConstVote int                  `json:"constVote"`
	Clauses   foil.ClauseVec       `json:"clauses"`
	Residuals []*relation.Relation `json:"residuals"`
	LDAs      []*lda.Classifier    `json:"ldas"`
}

// updateClassifier brings every stale mode's object clauses and pairwise
// classifiers up to date. Called lazily before any classification.
func (l *Learner) updateClassifier() {
	needs := make([]bool, len(l.modes))
	for i, m := range l.modes {
		if m.classifierStale {
			needs[i] = true
			m.classifierStale = false
		}
	}
	for i, m := range l.modes {
		if needs[i] {
			l.learnObjClauses(m)
		}
		for j := i + 1; j < len(l.modes); j++ {
			if needs[i] || needs[j] {
				l.updatePair(i, j)
			}
		}
	}
}

// updatePair rebuilds the classifier deciding between modes i and j, i < j.
// The classifier lives on the lower-indexed mode.
func (l *Learner) updatePair(i, j int) {
	for len(l.modes[i].classifiers) <= j {
		l.modes[i].classifiers = append(l.modes[i].classifiers, nil)
	}
	c := &pairClassifier{}
	l.modes[i].classifiers[j] = c

	memI := l.modes[i].memberRel
	memJ := l.modes[j].memberRel

	if memI.Size() > memJ.Size() {
		c.ConstVote = 0
	} else {
		c.ConstVote = 1
	}
	if memI.Size() == 0 || memJ.Size() == 0 {
		return
	}

	if l.enableFOIL {
		f := foil.New(memI, memJ, l.relTbl, l.cfg.FOIL, l.rng)
		c.Clauses, c.Residuals, _ = f.Learn()
	} else {
		// no clauses, let a single numeric classifier separate everything
		c.Residuals = []*relation.Relation{memI.Clone()}
	}

	// Per-clause residuals hold members of j the clause wrongly captured; a
	// trailing residual holds members of i no clause captured. Train a
	// numeric discriminant for each nonempty one.
	c.LDAs = make([]*lda.Classifier, len(c.Residuals))
	for k, r := range c.Residuals {
		if r.Size() == 0 {
			continue
		}
		if k < len(c.Clauses) {
			c.LDAs[k] = l.learnNumericClassifier(memI, r)
		} else {
			c.LDAs[k] = l.learnNumericClassifier(r, memJ)
		}
	}
}

// learnNumericClassifier trains a discriminant labeling pos members 1 and neg
// members 0, keeping it only if held-out accuracy beats majority guessing.
func (l *Learner) learnNumericClassifier(pos, neg *relation.Relation) *lda.Classifier {
	if !l.enableLDA {
		return nil
	}
	pi := pos.AtPos(0)
	ni := neg.AtPos(0)
	npos, nneg := len(pi), len(ni)
	ntotal := npos + nneg

	posTrain := int(l.cfg.LDATrainRatio * float64(npos))
	if posTrain == npos {
		posTrain--
	}
	negTrain := int(l.cfg.LDATrainRatio * float64(nneg))
	if negTrain == nneg {
		negTrain--
	}
	if posTrain < 2 || negTrain < 2 {
		return nil
	}
	ntrain := posTrain + negTrain
	ntest := ntotal - ntrain

	// a single discriminant only makes sense over one input layout
	sigIdx := l.data[pi[0]].SigIndex
	for _, lists := range [][]int{pi, ni} {
		for _, i := range lists {
			if l.data[i].SigIndex != sigIdx {
				return nil
			}
		}
	}

	l.rng.Shuffle(len(pi), func(a, b int) { pi[a], pi[b] = pi[b], pi[a] })
	l.rng.Shuffle(len(ni), func(a, b int) { ni[a], ni[b] = ni[b], ni[a] })

	ncols := len(l.data[pi[0]].X)
	X := mat.NewDense(ntrain, ncols, nil)
	classes := make([]int, 0, ntrain)
	for i := 0; i < posTrain; i++ {
		X.SetRow(i, l.data[pi[i]].X)
		classes = append(classes, 1)
	}
	for i := 0; i < negTrain; i++ {
		X.SetRow(posTrain+i, l.data[ni[i]].X)
		classes = append(classes, 0)
	}

	cls, ok := lda.Learn(X, classes, l.cfg.Regression)
	if !ok {
		return nil
	}

	correct := 0
	for i := posTrain; i < npos; i++ {
		if cls.Classify(l.data[pi[i]].X) == 1 {
			correct++
		}
	}
	for i := negTrain; i < nneg; i++ {
		if cls.Classify(l.data[ni[i]].X) == 0 {
			correct++
		}
	}
	success := float64(correct) / float64(ntest)
	baseline := float64(npos) / float64(ntotal)
	if nneg > npos {
		baseline = float64(nneg) / float64(ntotal)
	}
	if success > baseline {
		return cls
	}
	return nil
}

// votePair returns 0 to vote for mode i, 1 for mode j, -1 to abstain.
func (l *Learner) votePair(i, j, target int, xsig *scene.Signature, rels relation.Table, x []float64) int {
	c := l.modes[i].classifiers[j]
	if c == nil {
		return -1
	}
	domains := foil.VarDomains{
		0: foil.Singleton(0),
		1: foil.Singleton(xsig.Entries[target].ID),
	}
	matched := foil.TestClauseVec(c.Clauses, rels, domains)
	if matched >= 0 {
		if matched < len(c.LDAs) && c.LDAs[matched] != nil {
			return c.LDAs[matched].Classify(x)
		}
		return 0
	}
	if len(c.LDAs) > len(c.Clauses) && c.LDAs[len(c.LDAs)-1] != nil {
		return c.LDAs[len(c.LDAs)-1].Classify(x)
	}
	return c.ConstVote
}

// mapObjs finds, for every slot of mode m's signature, the concrete scene
// object filling that slot. Slot 0 is pinned to the target; the rest resolve
// by type uniqueness or by the mode's learned object clauses.
func (l *Learner) mapObjs(m *mode, target int, xsig *scene.Signature, rels relation.Table) ([]int, bool) {
	n := m.sig.Len()
	if n == 0 {
		n = 1
	}
	mapping := make([]int, n)
	for i := range mapping {
		mapping[i] = -1
	}
	mapping[0] = target

	used := make([]bool, xsig.Len())
	used[target] = true

	for i := 1; i < m.sig.Len(); i++ {
		cand := map[int]bool{}
		for j, e := range xsig.Entries {
			if !used[j] && e.Type == m.sig.Entries[i].Type {
				cand[e.ID] = true
			}
		}
		var objID int
		switch {
		case len(cand) == 0:
			return nil, false
		case len(cand) == 1 || len(m.objClauses[i]) == 0:
			objID = minID(cand)
		default:
			domains := foil.VarDomains{
				0: foil.Singleton(0),
				1: foil.Singleton(xsig.Entries[target].ID),
				2: cand,
			}
			if foil.TestClauseVec(m.objClauses[i], rels, domains) < 0 {
				return nil, false
			}
			objID = minID(domains[2])
		}
		p := xsig.FindID(objID)
		if p < 0 {
			return nil, false
		}
		mapping[i] = p
		used[p] = true
	}
	return mapping, true
}

// minID returns the smallest id in the set. Candidate ties resolve to the
// lowest object id so repeated classification of one scene is stable.
func minID(ids map[int]bool) int {
	best := -1
	for id := range ids {
		if best == -1 || id < best {
			best = id
		}
	}
	return best
}

// Classify picks the mode a novel point belongs to by pairwise voting over
// every mode whose objects the scene can supply. It returns the mode index
// and the object mapping; mode 0 means noise. Vote ties go to the
// lowest-indexed mode.
func (l *Learner) classify(target int, xsig *scene.Signature, rels relation.Table, x []float64) (int, []int) {
	l.updateClassifier()

	possible := []int{0}
	mappings := map[int][]int{}
	for i := 1; i < len(l.modes); i++ {
		m := l.modes[i]
		if m.sig.Len() > xsig.Len() {
			continue
		}
		if mp, ok := l.mapObjs(m, target, xsig, rels); ok {
			mappings[i] = mp
			possible = append(possible, i)
		}
	}
	if len(possible) == 1 {
		return possible[0], mappings[possible[0]]
	}

	votes := make(map[int]int)
	for a := 0; a < len(possible)-1; a++ {
		for b := a + 1; b < len(possible); b++ {
			switch l.votePair(possible[a], possible[b], target, xsig, rels, x) {
			case 0:
				votes[possible[a]]++
			case 1:
				votes[possible[b]]++
			}
		}
	}

	best := possible[0]
	for _, i := range possible[1:] {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return best, mappings[best]
}
