// Package regression provides the dense linear regression solvers used by the
// mixture learner: ordinary least squares, ridge, and greedy forward
// selection, plus the data-cleaning and bias-augmentation steps that make
// degenerate inputs fittable.
package regression

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Algorithm selects the solver used by Fit.
type Algorithm int

const (
	OLS Algorithm = iota
	Ridge
	Forward
)

// Config carries the numeric knobs of the solvers.
type Config struct {
	// RidgeLambda is the regularization strength for ridge solves and for
	// the fallback when OLS hits a singular system.
	RidgeLambda float64 `json:"ridgeLambda"`

	// SameThresh is the column range below which a column is considered
	// constant and removed before fitting.
	SameThresh float64 `json:"sameThresh"`

	// ForwardImprove is the minimum relative RSS improvement required for
	// forward selection to keep adding predictors.
	ForwardImprove float64 `json:"forwardImprove"`
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() Config {
	return Config{
		RidgeLambda:    1e-8,
		SameThresh:     1e-15,
		ForwardImprove: 1e-6,
	}
}

// Clean removes constant columns from X. It returns the reduced matrix and
// the indices of the surviving columns.
func Clean(X *mat.Dense, sameThresh float64) (*mat.Dense, []int) {
	rows, cols := X.Dims()
	if rows == 0 {
		return mat.NewDense(1, 1, nil), nil
	}
	var used []int
	for j := 0; j < cols; j++ {
		lo, hi := X.At(0, j), X.At(0, j)
		for i := 1; i < rows; i++ {
			v := X.At(i, j)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo > sameThresh {
			used = append(used, j)
		}
	}
	if len(used) == 0 {
		// keep a single zero column so downstream solves stay well formed
		return mat.NewDense(rows, 1, nil), used
	}
	out := mat.NewDense(rows, len(used), nil)
	for k, j := range used {
		for i := 0; i < rows; i++ {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out, used
}

// AugmentOnes appends a bias column of ones to X.
func AugmentOnes(X *mat.Dense) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(i, j))
		}
		out.Set(i, cols, 1)
	}
	return out
}

// SolveOLS computes the least-squares coefficients of Y ≈ X·c. On a singular
// system it falls back to a ridge solve.
func SolveOLS(X, Y *mat.Dense, cfg Config) ([]float64, bool) {
	_, cols := X.Dims()
	var c mat.Dense
	if err := c.Solve(X, Y); err != nil {
		return SolveRidge(X, Y, cfg.RidgeLambda)
	}
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = c.At(j, 0)
	}
	return out, true
}

// SolveRidge solves (XᵀX + λI)c = XᵀY.
func SolveRidge(X, Y *mat.Dense, lambda float64) ([]float64, bool) {
	_, cols := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 0; j < cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}
	var xty mat.Dense
	xty.Mul(X.T(), Y)
	var c mat.Dense
	if err := c.Solve(&xtx, &xty); err != nil {
		return nil, false
	}
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = c.At(j, 0)
	}
	return out, true
}

// SolveWeighted computes weighted least squares by scaling each row of X and
// Y by its weight before an ordinary solve.
func SolveWeighted(X, Y *mat.Dense, w []float64, cfg Config) ([]float64, bool) {
	rows, cols := X.Dims()
	Xw := mat.NewDense(rows, cols, nil)
	Yw := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			Xw.Set(i, j, X.At(i, j)*w[i])
		}
		Yw.Set(i, 0, Y.At(i, 0)*w[i])
	}
	return SolveOLS(Xw, Yw, cfg)
}

// SolveForward performs greedy forward selection: predictors are added one at
// a time, each step picking the column that most reduces the residual sum of
// squares, stopping when the relative improvement falls below
// cfg.ForwardImprove. Unselected columns get zero coefficients, which is what
// lets the mixture core detect the objects a model is conditioned on.
func SolveForward(X, Y *mat.Dense, cfg Config) ([]float64, bool) {
	rows, cols := X.Dims()
	out := make([]float64, cols)

	rss := 0.0
	for i := 0; i < rows; i++ {
		rss += Y.At(i, 0) * Y.At(i, 0)
	}
	if rss == 0 {
		return out, true
	}

	var selected []int
	remaining := make([]int, cols)
	for j := range remaining {
		remaining[j] = j
	}
	bestCoefs := []float64(nil)

	for len(remaining) > 0 {
		bestRSS := math.Inf(1)
		bestIdx := -1
		var bestFit []float64
		for ri, j := range remaining {
			cand := append(append([]int(nil), selected...), j)
			Xs := pickCols(X, cand)
			coefs, ok := SolveRidge(Xs, Y, cfg.RidgeLambda)
			if !ok {
				continue
			}
			r := residualSS(Xs, Y, coefs)
			if r < bestRSS {
				bestRSS = r
				bestIdx = ri
				bestFit = coefs
			}
		}
		if bestIdx < 0 {
			break
		}
		improve := (rss - bestRSS) / rss
		if len(selected) > 0 && improve < cfg.ForwardImprove {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		bestCoefs = bestFit
		rss = bestRSS
		if rss < cfg.SameThresh*float64(rows) {
			break
		}
	}
	if bestCoefs == nil {
		return nil, false
	}
	for k, j := range selected {
		out[j] = bestCoefs[k]
	}
	return out, true
}

// SolvePrepared fits Y ≈ X·c on an already cleaned and bias-augmented X.
func SolvePrepared(algo Algorithm, X, Y *mat.Dense, cfg Config) ([]float64, bool) {
	switch algo {
	case Forward:
		return SolveForward(X, Y, cfg)
	case Ridge:
		return SolveRidge(X, Y, cfg.RidgeLambda)
	default:
		return SolveOLS(X, Y, cfg)
	}
}

// Fit performs the full pipeline on raw data: center, clean degenerate
// columns, solve, and expand back to full width. It returns coefficients over
// all original columns (zeros for removed or unselected ones) plus a separate
// intercept. ok is false when the data cannot support a fit at all.
func Fit(algo Algorithm, X *mat.Dense, y []float64, cfg Config) (coefs []float64, intercept float64, ok bool) {
	rows, cols := X.Dims()
	if rows == 0 || len(y) != rows {
		return nil, 0, false
	}

	xmean := make([]float64, cols)
	for j := 0; j < cols; j++ {
		s := 0.0
		for i := 0; i < rows; i++ {
			s += X.At(i, j)
		}
		xmean[j] = s / float64(rows)
	}
	ymean := 0.0
	for _, v := range y {
		ymean += v
	}
	ymean /= float64(rows)

	Xc := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			Xc.Set(i, j, X.At(i, j)-xmean[j])
		}
	}
	Yc := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		Yc.Set(i, 0, y[i]-ymean)
	}

	Xclean, used := Clean(Xc, cfg.SameThresh)
	coefs = make([]float64, cols)
	if len(used) == 0 {
		// constant model
		return coefs, ymean, true
	}

	reduced, fitOK := SolvePrepared(algo, Xclean, Yc, cfg)
	if !fitOK {
		return nil, 0, false
	}
	for k, j := range used {
		coefs[j] = reduced[k]
	}
	intercept = ymean
	for j := 0; j < cols; j++ {
		intercept -= coefs[j] * xmean[j]
	}
	return coefs, intercept, true
}

// Predict evaluates x·coefs + intercept.
func Predict(x, coefs []float64, intercept float64) float64 {
	y := intercept
	for i, c := range coefs {
		y += c * x[i]
	}
	return y
}

func pickCols(X *mat.Dense, cols []int) *mat.Dense {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < rows; i++ {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}

func residualSS(X *mat.Dense, Y *mat.Dense, coefs []float64) float64 {
	rows, cols := X.Dims()
	rss := 0.0
	for i := 0; i < rows; i++ {
		pred := 0.0
		for j := 0; j < cols; j++ {
			pred += X.At(i, j) * coefs[j]
		}
		d := Y.At(i, 0) - pred
		rss += d * d
	}
	return rss
}
