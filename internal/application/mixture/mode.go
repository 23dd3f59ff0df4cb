package mixture

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	"github.com/blackms/piecewise-go/internal/infrastructure/foil"
	"github.com/blackms/piecewise-go/internal/infrastructure/lwr"
	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

// observation is one training point. X, Y, Target and SigIndex never change
// after Learn; the posterior fields are mutated only during the E-step.
type observation struct {
	X        []float64 `json:"x"`
	Y        float64   `json:"y"`
	Target   int       `json:"target"`
	SigIndex int       `json:"sigIndex"`

	// ModeProb[i] is the probability the point belongs to mode i;
	// ProbStale marks entries needing recomputation.
	ModeProb  []float64 `json:"modeProb"`
	ProbStale []bool    `json:"probStale"`

	// MapMode is the argmax of ModeProb. ObjMap maps model signature
	// positions to scene signature positions, fixed when the point was
	// last assigned to MapMode.
	MapMode int   `json:"mapMode"`
	ObjMap  []int `json:"objMap"`
}

// sigInfo is one signature bucket: the signature, its member observation
// indices, and the fallback LWR model trained on every member.
type sigInfo struct {
	sig     *scene.Signature
	members []int
	lwr     *lwr.Model
}

// yEntry orders noise observations by output value so constant-output runs
// are a single linear scan.
type yEntry struct {
	y   float64
	idx int
}

// mode is one mixture component: the distinguished noise mode, or a fitted
// linear model over a reduced signature plus the symbolic machinery that
// re-identifies its conditioning objects in novel scenes.
type mode struct {
	noise           bool
	stale           bool
	newFit          bool
	classifierStale bool

	members []int // sorted observation indices
	sig     *scene.Signature
	coefs   []float64 // reduced width, sig.Dim()
	inter   float64

	// objClauses[i] re-identifies the object filling signature position i;
	// position 0 is pinned to the target and carries no clauses.
	objClauses []foil.ClauseVec

	// classifiers[j] is the pairwise classifier against mode j; entries at
	// or below this mode's own index live on the lower-indexed mode.
	classifiers []*pairClassifier

	memberRel *relation.Relation // (obs index, target object id)
	sortedYs  []yEntry           // noise mode only
}

func newMode(noise bool) *mode {
	return &mode{
		noise:           noise,
		stale:           !noise,
		newFit:          true,
		classifierStale: true,
		sig:             &scene.Signature{},
		memberRel:       relation.New(2),
	}
}

func (m *mode) size() int { return len(m.members) }

func (m *mode) hasMember(i int) bool {
	k := sort.SearchInts(m.members, i)
	return k < len(m.members) && m.members[k] == i
}

func (m *mode) insertMember(i int) {
	k := sort.SearchInts(m.members, i)
	if k < len(m.members) && m.members[k] == i {
		return
	}
	m.members = append(m.members, 0)
	copy(m.members[k+1:], m.members[k:])
	m.members[k] = i
}

func (m *mode) removeMember(i int) {
	k := sort.SearchInts(m.members, i)
	if k == len(m.members) || m.members[k] != i {
		return
	}
	m.members = append(m.members[:k], m.members[k+1:]...)
}

// addExample registers observation i as a member. Noise keeps its Y-sorted
// set current; a fitted mode goes stale when the new member is not predicted
// within the error threshold.
func (l *Learner) addExample(m *mode, i int) {
	d := l.data[i]
	dsig := l.sigs[d.SigIndex].sig

	m.insertMember(i)
	m.classifierStale = true
	m.memberRel.Add(i, dsig.Entries[d.Target].ID)
	if m.noise {
		insertSortedY(&m.sortedYs, yEntry{d.Y, i})
		return
	}
	y := m.predict(dsig, d.X, d.ObjMap)
	if math.Abs(y-d.Y) > l.cfg.ModelErrorThresh {
		m.stale = true
	}
}

func (l *Learner) delExample(m *mode, i int) {
	d := l.data[i]
	dsig := l.sigs[d.SigIndex].sig

	m.classifierStale = true
	m.memberRel.Del(i, dsig.Entries[d.Target].ID)
	m.removeMember(i)
	if m.noise {
		removeSortedY(&m.sortedYs, yEntry{d.Y, i})
	}
}

func insertSortedY(ys *[]yEntry, e yEntry) {
	k := sort.Search(len(*ys), func(i int) bool {
		o := (*ys)[i]
		return o.y > e.y || (o.y == e.y && o.idx >= e.idx)
	})
	*ys = append(*ys, yEntry{})
	copy((*ys)[k+1:], (*ys)[k:])
	(*ys)[k] = e
}

func removeSortedY(ys *[]yEntry, e yEntry) {
	k := sort.Search(len(*ys), func(i int) bool {
		o := (*ys)[i]
		return o.y > e.y || (o.y == e.y && o.idx >= e.idx)
	})
	if k < len(*ys) && (*ys)[k] == e {
		*ys = append((*ys)[:k], (*ys)[k+1:]...)
	}
}

// largestConstSubset returns the noise members of the longest run of equal
// output values sharing one signature bucket. A run spanning buckets mixes
// feature widths and cannot seed a single fit.
func (l *Learner) largestConstSubset(m *mode) []int {
	var best []int
	cur := map[int][]int{}
	flush := func() {
		keys := make([]int, 0, len(cur))
		for k := range cur {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			if len(cur[k]) > len(best) {
				best = cur[k]
			}
		}
	}
	last := math.NaN()
	for _, e := range m.sortedYs {
		if e.y != last {
			flush()
			cur = map[int][]int{}
			last = e.y
		}
		sigIdx := l.data[e.idx].SigIndex
		cur[sigIdx] = append(cur[sigIdx], e.idx)
	}
	flush()
	return best
}

// uniformSig reports whether every member shares the given signature bucket
// and target position.
func (l *Learner) uniformSig(m *mode, sigIdx, target int) bool {
	for _, i := range m.members {
		if l.data[i].SigIndex != sigIdx || l.data[i].Target != target {
			return false
		}
	}
	return true
}

// predict evaluates the linear model after gathering the scene's property
// blocks into model order via objMap.
func (m *mode) predict(dsig *scene.Signature, x []float64, objMap []int) float64 {
	if len(m.coefs) == 0 {
		return m.inter
	}
	y := m.inter
	pos := 0
	for _, p := range objMap {
		e := dsig.Entries[p]
		for k := 0; k < e.Width(); k++ {
			y += m.coefs[pos] * x[e.Start+k]
			pos++
		}
	}
	return y
}

// calcProb scores an observation against the mode: the maximum over all
// injective object assignments of the Gaussian likelihood of y under the
// model's prediction. Noise has the fixed probability PNoise. It returns the
// probability, the winning assignment, and its signed residual.
func (l *Learner) calcProb(m *mode, target int, xsig *scene.Signature, x []float64, y float64) (float64, []int, float64) {
	if m.noise {
		// noise has no model to take a residual against
		return l.cfg.PNoise, nil, math.NaN()
	}

	if m.sig.Empty() {
		// constant model
		residual := y - m.inter
		p := (1 - l.cfg.Epsilon) * gaussPDF(y, m.inter, l.cfg.MeasureVar)
		return p, nil, residual
	}

	possibles := make([][]int, m.sig.Len())
	possibles[0] = []int{target}
	for i := 1; i < m.sig.Len(); i++ {
		for j, e := range xsig.Entries {
			if j != target && e.Type == m.sig.Entries[i].Type && e.Width() == m.sig.Entries[i].Width() {
				possibles[i] = append(possibles[i], j)
			}
		}
	}

	gen := newAssignmentGenerator(possibles, false)
	assign := make([]int, len(possibles))
	xc := make([]float64, m.sig.Dim())
	bestProb := -1.0
	var bestAssign []int
	var bestResidual float64
	for gen.Next(assign) {
		pos := 0
		for _, p := range assign {
			e := xsig.Entries[p]
			for k := 0; k < e.Width(); k++ {
				xc[pos] = x[e.Start+k]
				pos++
			}
		}
		py := m.inter
		for j, c := range m.coefs {
			py += c * xc[j]
		}
		p := (1 - l.cfg.Epsilon) * gaussPDF(y, py, l.cfg.MeasureVar)
		if p > bestProb {
			bestProb = p
			bestAssign = append([]int(nil), assign...)
			bestResidual = y - py
		}
	}
	if bestProb < 0 {
		// no type-compatible assignment exists
		return 0, nil, math.Inf(1)
	}
	return bestProb, bestAssign, bestResidual
}

// initFit fits the mode to the given observations (all sharing one signature
// bucket), then reduces the model signature to the objects with nonzero
// coefficients, target first.
func (l *Learner) initFit(m *mode, dataInds []int) bool {
	d0 := l.data[dataInds[0]]
	dsig := l.sigs[d0.SigIndex].sig
	target := d0.Target

	X := mat.NewDense(len(dataInds), len(d0.X), nil)
	y := make([]float64, len(dataInds))
	for i, di := range dataInds {
		X.SetRow(i, l.data[di].X)
		y[i] = l.data[di].Y
	}
	coefs, inter, ok := regression.Fit(regression.Forward, X, y, l.cfg.Regression)
	if !ok {
		return false
	}

	relevant := []int{target}
	for i, e := range dsig.Entries {
		if i == target {
			continue
		}
		for j := e.Start; j < e.Start+e.Width(); j++ {
			if coefs[j] != 0 {
				relevant = append(relevant, i)
				break
			}
		}
	}

	// constant model: target itself contributes nothing
	targetUsed := false
	te := dsig.Entries[target]
	for j := te.Start; j < te.Start+te.Width(); j++ {
		if coefs[j] != 0 {
			targetUsed = true
			break
		}
	}
	if !targetUsed && len(relevant) == 1 {
		relevant = nil
	}

	m.sig = &scene.Signature{}
	m.coefs = nil
	for _, i := range relevant {
		e := dsig.Entries[i]
		m.sig.Add(e)
		m.coefs = append(m.coefs, coefs[e.Start:e.Start+e.Width()]...)
	}
	m.inter = inter
	m.objClauses = make([]foil.ClauseVec, m.sig.Len())
	m.newFit = true
	m.stale = false
	m.classifierStale = true
	return true
}

// updateFit refits the linear model over the current members' relevant
// feature blocks. Returns whether a refit happened.
func (l *Learner) updateFit(m *mode) bool {
	if !m.stale {
		return false
	}
	xcols := m.sig.Dim()
	X := mat.NewDense(max(len(m.members), 1), max(xcols, 1), nil)
	y := make([]float64, len(m.members))
	for r, i := range m.members {
		d := l.data[i]
		dsig := l.sigs[d.SigIndex].sig
		pos := 0
		for _, p := range d.ObjMap {
			e := dsig.Entries[p]
			for k := 0; k < e.Width(); k++ {
				X.Set(r, pos, d.X[e.Start+k])
				pos++
			}
		}
		y[r] = d.Y
	}
	if len(m.members) > 0 && xcols > 0 {
		coefs, inter, ok := regression.Fit(regression.Forward, X, y, l.cfg.Regression)
		if ok {
			m.coefs = coefs
			m.inter = inter
		}
	} else if len(m.members) > 0 {
		s := 0.0
		for _, v := range y {
			s += v
		}
		m.inter = s / float64(len(y))
	}
	m.stale = false
	m.newFit = true
	return true
}

// learnObjClauses refreshes, for each conditioning object slot past the
// pinned target, the Horn clauses that pick out the concrete object filling
// that slot across the member scenes.
func (l *Learner) learnObjClauses(m *mode) {
	if !l.enableFOIL {
		for i := range m.objClauses {
			m.objClauses[i] = nil
		}
		return
	}
	for i := 1; i < m.sig.Len(); i++ {
		typ := m.sig.Entries[i].Type
		pos := relation.New(3)
		neg := relation.New(3)
		for _, j := range m.members {
			d := l.data[j]
			dsig := l.sigs[d.SigIndex].sig
			if i >= len(d.ObjMap) {
				continue
			}
			targetID := dsig.Entries[d.Target].ID
			objID := dsig.Entries[d.ObjMap[i]].ID
			pos.Add(j, targetID, objID)
			for k, e := range dsig.Entries {
				if e.Type == typ && k != d.Target && e.ID != objID {
					neg.Add(j, targetID, e.ID)
				}
			}
		}
		f := foil.New(pos, neg, l.relTbl, l.cfg.FOIL, l.rng)
		clauses, _, ok := f.Learn()
		if !ok {
			l.logger.Debug("object clause induction left positives uncovered")
		}
		m.objClauses[i] = clauses
	}
}

func gaussPDF(x, mean, variance float64) float64 {
	d := x - mean
	return math.Exp(-d*d/(2*variance)) / math.Sqrt(2*math.Pi*variance)
}
