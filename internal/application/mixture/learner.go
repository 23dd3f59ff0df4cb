package mixture

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	"github.com/blackms/piecewise-go/internal/infrastructure/lwr"
	"github.com/blackms/piecewise-go/internal/shared"
)

// Learner is an online mixture-of-experts learner over piecewise linear
// functions. Observations stream in through Learn; Run moves points between
// modes with expectation maximization, splitting new modes out of the noise
// and dissolving ones that lose their members.
//
// Learner is not safe for concurrent use.
type Learner struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand

	data  []*observation
	sigs  []*sigInfo
	modes []*mode

	// relTbl accumulates every scene's relations, keyed by observation
	// index in the time position.
	relTbl relation.Table

	// noiseBySig tracks noise-mode members per signature bucket.
	noiseBySig map[int]map[int]bool

	// objMaps caches the winning object assignment per (mode, observation).
	objMaps map[[2]int][]int

	// checkAfter is the noise size below which mode discovery is skipped.
	// It backs off after failed attempts.
	checkAfter int

	enableEM   bool
	enableFOIL bool
	enableLDA  bool

	stats Stats
}

// New returns an empty learner holding only the noise mode. A nil logger
// disables logging.
func New(cfg Config, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	l := &Learner{
		cfg:        cfg,
		logger:     logger,
		rng:        rand.New(rand.NewSource(seed)),
		relTbl:     relation.Table{},
		noiseBySig: map[int]map[int]bool{},
		objMaps:    map[[2]int][]int{},
		checkAfter: cfg.NewModeThresh,
		enableEM:   true,
		enableFOIL: true,
		enableLDA:  true,
	}
	noise := newMode(true)
	noise.classifiers = make([]*pairClassifier, 1)
	l.modes = append(l.modes, noise)
	return l
}

// EnableEM toggles expectation maximization in Run.
func (l *Learner) EnableEM(on bool) { l.enableEM = on }

// EnableFOIL toggles clause induction; when off, classification falls back to
// numeric discriminants alone.
func (l *Learner) EnableFOIL(on bool) { l.enableFOIL = on }

// EnableLDA toggles numeric discriminants in the pairwise classifiers.
func (l *Learner) EnableLDA(on bool) { l.enableLDA = on }

// NumModes returns the mode count, noise included.
func (l *Learner) NumModes() int { return len(l.modes) }

// NumObservations returns how many points have been learned.
func (l *Learner) NumObservations() int { return len(l.data) }

// Stats returns a snapshot of the learner's counters.
func (l *Learner) Stats() Stats {
	s := l.stats
	s.Observations = len(l.data)
	s.Modes = len(l.modes)
	return s
}

// Learn adds one training point: a target object in a scene with signature
// sig and relations rels, a flat feature vector x laid out per sig, and the
// observed output y. The point starts in the noise mode.
func (l *Learner) Learn(target int, sig *scene.Signature, rels relation.Table, x []float64, y float64) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if target < 0 || target >= sig.Len() {
		return shared.Invariantf("target %d outside signature of %d entries", target, sig.Len())
	}
	if len(x) != sig.Dim() {
		return shared.Invariantf("input width %d does not match signature width %d", len(x), sig.Dim())
	}

	sigIdx := -1
	for i, si := range l.sigs {
		if si.sig.Equal(sig) {
			sigIdx = i
			break
		}
	}
	if sigIdx < 0 {
		l.sigs = append(l.sigs, &sigInfo{
			sig: sig.Clone(),
			lwr: lwr.New(l.cfg.LWRNeighbors, l.cfg.Regression),
		})
		sigIdx = len(l.sigs) - 1
	}

	d := &observation{
		X:         append([]float64(nil), x...),
		Y:         y,
		Target:    target,
		SigIndex:  sigIdx,
		ModeProb:  make([]float64, len(l.modes)),
		ProbStale: make([]bool, len(l.modes)),
	}
	d.ModeProb[0] = l.cfg.PNoise
	for j := 1; j < len(l.modes); j++ {
		d.ProbStale[j] = true
	}

	i := len(l.data)
	l.data = append(l.data, d)
	si := l.sigs[sigIdx]
	si.members = append(si.members, i)
	si.lwr.Learn(d.X, d.Y)

	l.addExample(l.modes[0], i)
	if l.noiseBySig[sigIdx] == nil {
		l.noiseBySig[sigIdx] = map[int]bool{}
	}
	l.noiseBySig[sigIdx][i] = true
	l.relTbl.Merge(rels, i)

	l.stats.Observations = len(l.data)
	return nil
}

// estep recomputes stale posteriors and moves points whose most likely mode
// changed. Only (point, mode) pairs invalidated since the last pass are
// rescored.
func (l *Learner) estep() {
	start := time.Now()

	for i, d := range l.data {
		xsig := l.sigs[d.SigIndex].sig
		stale := false
		for j := 1; j < len(l.modes); j++ {
			if !d.ProbStale[j] && !l.modes[j].newFit {
				continue
			}
			prev := d.ModeProb[d.MapMode]
			now, assign, _ := l.calcProb(l.modes[j], d.Target, xsig, d.X, d.Y)
			l.objMaps[[2]int{j, i}] = assign
			if (d.MapMode == j && now < prev) || (d.MapMode != j && now > d.ModeProb[d.MapMode]) {
				stale = true
			}
			d.ModeProb[j] = now
			d.ProbStale[j] = false
		}
		if !stale {
			continue
		}
		prev, now := d.MapMode, argmax(d.ModeProb)
		if now == prev {
			continue
		}
		d.MapMode = now
		l.delExample(l.modes[prev], i)
		if prev == 0 {
			delete(l.noiseBySig[d.SigIndex], i)
		}
		if mp, ok := l.objMaps[[2]int{now, i}]; ok {
			d.ObjMap = mp
		}
		l.addExample(l.modes[now], i)
		if now == 0 {
			l.noiseBySig[d.SigIndex][i] = true
		}
	}

	for _, m := range l.modes[1:] {
		m.newFit = false
	}

	l.stats.EStepCount++
	l.stats.AvgEStepMs += (float64(time.Since(start).Microseconds())/1000 - l.stats.AvgEStepMs) / float64(l.stats.EStepCount)
}

// mstep refits every mode marked stale by membership churn. Reports whether
// any fit changed.
func (l *Learner) mstep() bool {
	start := time.Now()
	changed := false
	for _, m := range l.modes[1:] {
		if l.updateFit(m) {
			changed = true
		}
	}
	l.stats.MStepCount++
	l.stats.AvgMStepMs += (float64(time.Since(start).Microseconds())/1000 - l.stats.AvgMStepMs) / float64(l.stats.MStepCount)
	return changed
}

// removeModes drops modes whose membership fell to MinModeSize or below and
// compacts every index that referenced them. Mode 0 is never removed.
func (l *Learner) removeModes() bool {
	if len(l.modes) == 1 {
		return false
	}

	indexMap := make([]int, len(l.modes))
	var removed []int
	kept := l.modes[:1]
	for j := 1; j < len(l.modes); j++ {
		if l.modes[j].size() > l.cfg.MinModeSize {
			indexMap[j] = len(kept)
			kept = append(kept, l.modes[j])
		} else {
			indexMap[j] = 0
			removed = append(removed, j)
		}
	}
	if len(removed) == 0 {
		return false
	}
	l.logger.Debug("removing starved modes", zap.Ints("modes", removed))
	l.modes = kept

	for _, m := range l.modes {
		m.classifiers = dropIndices(m.classifiers, removed)
	}
	for i, d := range l.data {
		orphaned := d.MapMode != 0 && indexMap[d.MapMode] == 0
		d.MapMode = indexMap[d.MapMode]
		d.ModeProb = dropIndices(d.ModeProb, removed)
		d.ProbStale = dropIndices(d.ProbStale, removed)
		if orphaned {
			// the dissolved mode's points fall back into noise
			d.ObjMap = nil
			l.addExample(l.modes[0], i)
			if l.noiseBySig[d.SigIndex] == nil {
				l.noiseBySig[d.SigIndex] = map[int]bool{}
			}
			l.noiseBySig[d.SigIndex][i] = true
			for j := 1; j < len(d.ProbStale); j++ {
				d.ProbStale[j] = true
			}
		}
	}

	remapped := make(map[[2]int][]int, len(l.objMaps))
	for k, v := range l.objMaps {
		j := indexMap[k[0]]
		if j != 0 || k[0] == 0 {
			remapped[[2]int{j, k[1]}] = v
		}
	}
	l.objMaps = remapped
	return true
}

// findNewModeInds looks for a linear subset of at least NewModeThresh points
// within one signature bucket's noise.
func (l *Learner) findNewModeInds(sigIdx int) []int {
	noise := sortedKeys(l.noiseBySig[sigIdx])
	if len(noise) < l.checkAfter {
		return nil
	}
	X, y := l.fillXY(noise)
	subset := l.findLinearSubset(X, y)
	if len(subset) >= l.cfg.NewModeThresh {
		out := make([]int, len(subset))
		for i, p := range subset {
			out[i] = noise[p]
		}
		return out
	}
	return nil
}

// unifyOrAddMode tries to turn accumulated noise into a mode: first the
// largest constant-output run, then a linear subset per signature bucket.
// A found subset first tries to unify with an existing mode; if the combined
// points still fit one line at the retention ratio the mode absorbs them,
// otherwise a fresh mode is created atomically.
func (l *Learner) unifyOrAddMode() bool {
	if l.modes[0].size() < l.checkAfter {
		return false
	}

	seedInds := l.largestConstSubset(l.modes[0])
	largest := len(seedInds)
	if largest < l.cfg.NewModeThresh {
		for _, sigIdx := range sortedKeys2(l.noiseBySig) {
			if s := l.findNewModeInds(sigIdx); len(s) > largest {
				seedInds = s
				largest = len(s)
			}
			if largest >= l.cfg.NewModeThresh {
				break
			}
		}
	}
	if largest < l.cfg.NewModeThresh {
		// back off so we don't rescan the same noise every call
		l.checkAfter += l.cfg.NewModeThresh - largest
		return false
	}
	l.checkAfter = l.cfg.NewModeThresh

	seedSig := l.data[seedInds[0]].SigIndex
	seedTarget := l.data[seedInds[0]].Target

	for j := 1; j < len(l.modes); j++ {
		m := l.modes[j]
		if !l.uniformSig(m, seedSig, seedTarget) {
			continue
		}
		combined := append(append([]int(nil), m.members...), seedInds...)
		X, y := l.fillXY(combined)
		subset := l.findLinearSubset(X, y)
		if float64(len(subset)) >= l.cfg.UnifyRetention*float64(len(combined)) {
			unified := make([]int, len(subset))
			for k, p := range subset {
				unified[k] = combined[p]
			}
			if l.initFit(m, unified) {
				l.logger.Debug("unified noise into existing mode", zap.Int("mode", j), zap.Int("points", len(unified)))
				return true
			}
		}
	}

	m := newMode(false)
	if !l.initFit(m, seedInds) {
		return false
	}
	l.modes = append(l.modes, m)
	for _, d := range l.data {
		d.ModeProb = append(d.ModeProb, 0)
		d.ProbStale = append(d.ProbStale, true)
	}
	for _, mo := range l.modes {
		for len(mo.classifiers) < len(l.modes) {
			mo.classifiers = append(mo.classifiers, nil)
		}
	}
	l.logger.Info("created mode", zap.Int("mode", len(l.modes)-1), zap.Int("seed", len(seedInds)))
	return true
}

// Run iterates E and M steps until quiescence: no fit changed, no mode was
// removed, and no mode could be split out of the noise. Returns true on
// convergence within maxIters.
func (l *Learner) Run(maxIters int) bool {
	l.stats.RunCount++
	if !l.enableEM {
		return false
	}
	for i := 0; i < maxIters; i++ {
		l.estep()
		changed := l.mstep()
		if !changed && !l.removeModes() && !l.unifyOrAddMode() {
			l.stats.LastRunIterations = i + 1
			l.stats.LastRunConverged = true
			return true
		}
	}
	l.logger.Warn("reached max iterations without quiescence", zap.Int("maxIters", maxIters))
	l.stats.LastRunIterations = maxIters
	l.stats.LastRunConverged = false
	return false
}

// Predict classifies a novel point and evaluates the winning mode's linear
// model. When the point lands in noise, the signature bucket's locally
// weighted regression answers instead; ok is false if even that has no data.
func (l *Learner) Predict(target int, sig *scene.Signature, rels relation.Table, x []float64) (mode int, y float64, ok bool) {
	if len(l.data) == 0 {
		return 0, math.NaN(), false
	}
	mode, objMap := l.classify(target, sig, rels, x)
	if mode == 0 {
		for _, si := range l.sigs {
			if si.sig.Equal(sig) {
				if y, ok = si.lwr.Predict(x); ok {
					return 0, y, true
				}
				break
			}
		}
		return 0, math.NaN(), false
	}
	return mode, l.modes[mode].predict(sig, x, objMap), true
}

// BestMode returns the mode with the highest posterior for a labeled point,
// along with the signed prediction error of that mode; the error is NaN when
// the noise mode wins. Useful for diagnosing classifier disagreements.
func (l *Learner) BestMode(target int, sig *scene.Signature, x []float64, y float64) (int, float64) {
	best, bestProb, bestErr := -1, 0.0, math.NaN()
	for i, m := range l.modes {
		p, _, residual := l.calcProb(m, target, sig, x, y)
		if best == -1 || p > bestProb {
			best, bestProb, bestErr = i, p, residual
		}
	}
	return best, bestErr
}

// fillXY gathers the given observations into a dense matrix and target slice.
func (l *Learner) fillXY(rows []int) (*mat.Dense, []float64) {
	if len(rows) == 0 {
		return mat.NewDense(1, 1, nil), nil
	}
	X := mat.NewDense(len(rows), len(l.data[rows[0]].X), nil)
	y := make([]float64, len(rows))
	for i, r := range rows {
		X.SetRow(i, l.data[r].X)
		y[i] = l.data[r].Y
	}
	return X, y
}

func argmax(vals []float64) int {
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return best
}

// dropIndices removes the (sorted) indices from v, preserving order.
func dropIndices[T any](v []T, inds []int) []T {
	out := v[:0]
	k := 0
	for i := range v {
		if k < len(inds) && i == inds[k] {
			k++
			continue
		}
		out = append(out, v[i])
	}
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func sortedKeys2(m map[int]map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
