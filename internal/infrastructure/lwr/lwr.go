// Package lwr provides the locally-weighted regression fallback model: a
// k-nearest-neighbor weighted linear fit used to predict for a signature
// bucket when no fitted mode claims the query.
package lwr

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

// Model accumulates raw (x, y) pairs and answers queries with a regression
// over the k nearest stored points.
type Model struct {
	k   int
	cfg regression.Config
	xs  [][]float64
	ys  []float64
}

// New creates a model that fits over the k nearest neighbors.
func New(k int, cfg regression.Config) *Model {
	return &Model{k: k, cfg: cfg}
}

// Learn appends a training pair. The slices are stored, not copied; callers
// own immutable training data.
func (m *Model) Learn(x []float64, y float64) {
	m.xs = append(m.xs, x)
	m.ys = append(m.ys, y)
}

// Size returns the number of stored pairs.
func (m *Model) Size() int { return len(m.xs) }

// Predict returns the locally-weighted estimate at x. ok is false when the
// model holds no data or the query width disagrees with the stored data.
func (m *Model) Predict(x []float64) (float64, bool) {
	n := len(m.xs)
	if n == 0 || len(m.xs[0]) != len(x) {
		return math.NaN(), false
	}

	type neighbor struct {
		idx  int
		dist float64
	}
	nbrs := make([]neighbor, n)
	for i, xi := range m.xs {
		d := 0.0
		for j := range x {
			diff := xi[j] - x[j]
			d += diff * diff
		}
		nbrs[i] = neighbor{i, math.Sqrt(d)}
	}
	sort.Slice(nbrs, func(i, j int) bool {
		if nbrs[i].dist != nbrs[j].dist {
			return nbrs[i].dist < nbrs[j].dist
		}
		return nbrs[i].idx < nbrs[j].idx
	})
	k := m.k
	if k > n {
		k = n
	}

	// exact hit short-circuits the fit
	if nbrs[0].dist == 0 {
		return m.ys[nbrs[0].idx], true
	}

	w := make([]float64, k)
	X := mat.NewDense(k, len(x), nil)
	Y := mat.NewDense(k, 1, nil)
	for i := 0; i < k; i++ {
		nb := nbrs[i]
		w[i] = math.Exp(-nb.dist)
		X.SetRow(i, m.xs[nb.idx])
		Y.Set(i, 0, m.ys[nb.idx])
	}

	Xc, used := regression.Clean(X, m.cfg.SameThresh)
	Xa := regression.AugmentOnes(Xc)
	coefs, ok := regression.SolveWeighted(Xa, Y, w, m.cfg)
	if !ok {
		// degenerate neighborhood: weighted mean
		num, den := 0.0, 0.0
		for i := 0; i < k; i++ {
			num += w[i] * Y.At(i, 0)
			den += w[i]
		}
		return num / den, true
	}

	y := coefs[len(coefs)-1]
	for c, j := range used {
		y += coefs[c] * x[j]
	}
	return y, true
}
