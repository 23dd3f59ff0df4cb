package lwr

import (
	"math"
	"testing"

	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

func TestPredictEmpty(t *testing.T) {
	m := New(5, regression.DefaultConfig())
	if _, ok := m.Predict([]float64{1}); ok {
		t.Fatal("empty model should not predict")
	}
}

func TestPredictExactHit(t *testing.T) {
	m := New(3, regression.DefaultConfig())
	m.Learn([]float64{1, 2}, 10)
	m.Learn([]float64{3, 4}, 20)

	y, ok := m.Predict([]float64{3, 4})
	if !ok || y != 20 {
		t.Fatalf("Predict on stored point = (%g, %t), expected (20, true)", y, ok)
	}
}

func TestPredictLocalLine(t *testing.T) {
	// y = 3x + 1 sampled densely; interpolation should be near exact
	m := New(5, regression.DefaultConfig())
	for i := 0; i < 40; i++ {
		x := float64(i) * 0.25
		m.Learn([]float64{x}, 3*x+1)
	}

	y, ok := m.Predict([]float64{2.1})
	if !ok {
		t.Fatal("prediction failed")
	}
	if math.Abs(y-(3*2.1+1)) > 1e-6 {
		t.Fatalf("Predict(2.1) = %g, expected %g", y, 3*2.1+1)
	}
}

func TestPredictWidthMismatch(t *testing.T) {
	m := New(3, regression.DefaultConfig())
	m.Learn([]float64{1, 2}, 5)
	if _, ok := m.Predict([]float64{1}); ok {
		t.Fatal("width mismatch should not predict")
	}
}
