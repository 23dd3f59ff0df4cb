// Package lda provides a two-class linear discriminant used to resolve mode
// membership where symbolic clauses cannot separate the classes.
package lda

import (
	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

// Classifier is a fitted linear discriminant over the full input width.
// Weights are zero for columns dropped as degenerate during training, so
// Classify accepts raw feature vectors.
type Classifier struct {
	Weights   []float64 `json:"weights"`
	Threshold float64   `json:"threshold"`
}

// Learn fits a discriminant separating class 1 from class 0. It returns ok
// false when either class is empty or the scatter solve fails.
func Learn(X *mat.Dense, classes []int, cfg regression.Config) (*Classifier, bool) {
	rows, cols := X.Dims()
	if rows != len(classes) || rows == 0 {
		return nil, false
	}

	Xc, used := regression.Clean(X, cfg.SameThresh)
	if len(used) == 0 {
		return nil, false
	}
	d := len(used)

	mean := [2][]float64{make([]float64, d), make([]float64, d)}
	count := [2]int{}
	for i := 0; i < rows; i++ {
		c := classes[i]
		if c != 0 && c != 1 {
			return nil, false
		}
		count[c]++
		for j := 0; j < d; j++ {
			mean[c][j] += Xc.At(i, j)
		}
	}
	if count[0] == 0 || count[1] == 0 {
		return nil, false
	}
	for c := 0; c < 2; c++ {
		for j := 0; j < d; j++ {
			mean[c][j] /= float64(count[c])
		}
	}

	// within-class scatter, ridge-regularized for invertibility
	sw := mat.NewDense(d, d, nil)
	diff := make([]float64, d)
	for i := 0; i < rows; i++ {
		mu := mean[classes[i]]
		for j := 0; j < d; j++ {
			diff[j] = Xc.At(i, j) - mu[j]
		}
		for j := 0; j < d; j++ {
			for k := 0; k < d; k++ {
				sw.Set(j, k, sw.At(j, k)+diff[j]*diff[k])
			}
		}
	}
	for j := 0; j < d; j++ {
		sw.Set(j, j, sw.At(j, j)+cfg.RidgeLambda)
	}

	rhs := mat.NewDense(d, 1, nil)
	for j := 0; j < d; j++ {
		rhs.Set(j, 0, mean[1][j]-mean[0][j])
	}
	var w mat.Dense
	if err := w.Solve(sw, rhs); err != nil {
		return nil, false
	}

	p0, p1 := 0.0, 0.0
	for j := 0; j < d; j++ {
		p0 += w.At(j, 0) * mean[0][j]
		p1 += w.At(j, 0) * mean[1][j]
	}

	cls := &Classifier{
		Weights:   make([]float64, cols),
		Threshold: (p0 + p1) / 2,
	}
	for k, j := range used {
		cls.Weights[j] = w.At(k, 0)
	}
	if p1 < p0 {
		// orient so class 1 projects above the threshold
		for j := range cls.Weights {
			cls.Weights[j] = -cls.Weights[j]
		}
		cls.Threshold = -cls.Threshold
	}
	return cls, true
}

// Classify returns 1 when x projects above the learned threshold, else 0.
func (c *Classifier) Classify(x []float64) int {
	p := 0.0
	for j, wj := range c.Weights {
		if j < len(x) {
			p += wj * x[j]
		}
	}
	if p > c.Threshold {
		return 1
	}
	return 0
}
