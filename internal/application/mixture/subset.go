package mixture

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

const maxKernelWeight = 1e9

// residualKernel turns per-row residuals into fitting weights. Rows close to
// the current line dominate the next refit.
func residualKernel(errs []float64, w []float64) {
	for i, e := range errs {
		if e == 0 {
			w[i] = maxKernelWeight
		} else {
			w[i] = math.Min(maxKernelWeight, math.Pow(e, -3))
		}
	}
}

// sampleInts draws k distinct ints from [0,n), sorted ascending.
func sampleInts(rng *rand.Rand, k, n int) []int {
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

// subsetBlock assumes points from a single mode arrive in contiguous runs:
// fit a line to a random block of full-rank size and collect every row the
// line explains.
func (l *Learner) subsetBlock(X *mat.Dense, y []float64) []int {
	ndata, xcols := X.Dims()
	rank := xcols + 1
	if ndata <= rank {
		return nil
	}
	start := l.rng.Intn(ndata - rank)
	Xb := mat.NewDense(rank, xcols, nil)
	yb := mat.NewDense(rank, 1, nil)
	for i := 0; i < rank; i++ {
		Xb.SetRow(i, X.RawRowView(start+i))
		yb.Set(i, 0, y[start+i])
	}
	coefs, ok := regression.SolvePrepared(regression.Forward, Xb, yb, l.cfg.Regression)
	if !ok {
		return nil
	}
	var subset []int
	for i := 0; i < ndata; i++ {
		if math.Abs(y[i]-rowDot(X, i, coefs)) < l.cfg.ModelErrorThresh {
			subset = append(subset, i)
		}
	}
	return subset
}

// subsetEM discovers a line in scattered data: seed a fit from random rows,
// then repeatedly reweight by inverse cubed residual and refit until the
// residuals stop moving.
func (l *Learner) subsetEM(X *mat.Dense, y []float64) []int {
	ndata, xcols := X.Dims()
	if ndata < xcols+2 {
		return nil
	}
	Y := mat.NewDense(ndata, 1, y)

	w := make([]float64, ndata)
	for _, i := range sampleInts(l.rng, xcols+1, ndata) {
		w[i] = 1
	}

	errs := make([]float64, ndata)
	oldErrs := make([]float64, ndata)
	for iter := 0; iter < l.cfg.MiniEMMaxIters; iter++ {
		coefs, ok := regression.SolveWeighted(X, Y, w, l.cfg.Regression)
		if !ok {
			return nil
		}
		copy(oldErrs, errs)
		for i := 0; i < ndata; i++ {
			errs[i] = math.Abs(y[i] - rowDot(X, i, coefs))
		}
		if iter > 0 {
			drift := 0.0
			for i := range errs {
				d := errs[i] - oldErrs[i]
				drift += d * d
			}
			if math.Sqrt(drift)/float64(ndata) < l.cfg.Regression.SameThresh {
				break
			}
		}
		residualKernel(errs, w)
	}

	var subset []int
	for i := 0; i < ndata; i++ {
		if errs[i] < l.cfg.ModelErrorThresh {
			subset = append(subset, i)
		}
	}
	return subset
}

// validateSubset holds out a test fraction of the candidate rows, fits the
// training rows, and accepts only if the held-out error stays under the model
// error threshold.
func (l *Learner) validateSubset(X *mat.Dense, y []float64, subset []int) bool {
	_, xcols := X.Dims()
	ntest := int(float64(len(subset)) * l.cfg.SubsetTestRatio)
	ntrain := len(subset) - ntest
	if ntest == 0 || ntrain == 0 {
		return false
	}

	testPos := sampleInts(l.rng, ntest, len(subset))
	isTest := make(map[int]bool, ntest)
	for _, p := range testPos {
		isTest[p] = true
	}

	Xtrain := mat.NewDense(ntrain, xcols, nil)
	ytrain := mat.NewDense(ntrain, 1, nil)
	Xtest := mat.NewDense(ntest, xcols, nil)
	ytest := make([]float64, 0, ntest)
	ti, ri := 0, 0
	for p, row := range subset {
		if isTest[p] {
			Xtest.SetRow(ti, X.RawRowView(row))
			ytest = append(ytest, y[row])
			ti++
		} else {
			Xtrain.SetRow(ri, X.RawRowView(row))
			ytrain.Set(ri, 0, y[row])
			ri++
		}
	}

	coefs, ok := regression.SolvePrepared(regression.Forward, Xtrain, ytrain, l.cfg.Regression)
	if !ok {
		return false
	}
	sse := 0.0
	for i := 0; i < ntest; i++ {
		d := ytest[i] - rowDot(Xtest, i, coefs)
		sse += d * d
	}
	return math.Sqrt(sse)/float64(ntest) <= l.cfg.ModelErrorThresh
}

// findLinearSubset searches X, y for the largest row subset that a single
// linear function explains. It tries a contiguous block seed first, then
// repeated reweighting runs over progressively smaller remainders. Returned
// indices are rows of the input.
func (l *Learner) findLinearSubset(X *mat.Dense, y []float64) []int {
	ndata, _ := X.Dims()
	if ndata == 0 {
		return nil
	}
	Xc, _ := regression.Clean(X, l.cfg.Regression.SameThresh)
	Xa := regression.AugmentOnes(Xc)

	if s := l.subsetBlock(Xa, y); len(s) >= l.cfg.NewModeThresh && l.validateSubset(Xa, y, s) {
		return s
	}

	_, xcols := Xa.Dims()
	ungrouped := make([]int, ndata)
	for i := range ungrouped {
		ungrouped[i] = i
	}
	cur := Xa
	curY := y
	var best []int

	for iter := 0; iter < l.cfg.SubsetMaxIters; iter++ {
		subset := l.subsetEM(cur, curY)
		if len(subset) < xcols*2 {
			continue
		}
		if !l.validateSubset(cur, curY, subset) {
			continue
		}
		if len(subset) > len(best) {
			best = make([]int, len(subset))
			for i, p := range subset {
				best[i] = ungrouped[p]
			}
			if len(best) >= l.cfg.NewModeThresh {
				return best
			}
		}

		// a grouped subset won't fit any other line, drop its rows
		keep := make([]int, 0, len(ungrouped)-len(subset))
		drop := make(map[int]bool, len(subset))
		for _, p := range subset {
			drop[p] = true
		}
		for p := range ungrouped {
			if !drop[p] {
				keep = append(keep, p)
			}
		}
		next := mat.NewDense(max(len(keep), 1), xcols, nil)
		nextY := make([]float64, len(keep))
		nextUngrouped := make([]int, len(keep))
		for i, p := range keep {
			next.SetRow(i, cur.RawRowView(p))
			nextY[i] = curY[p]
			nextUngrouped[i] = ungrouped[p]
		}
		cur, curY, ungrouped = next, nextY, nextUngrouped
		if len(ungrouped) < l.cfg.NewModeThresh {
			break
		}
	}
	return best
}

func rowDot(X *mat.Dense, i int, coefs []float64) float64 {
	row := X.RawRowView(i)
	s := 0.0
	for j, c := range coefs {
		s += c * row[j]
	}
	return s
}
