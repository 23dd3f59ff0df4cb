package lda

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

func separableData() (*mat.Dense, []int) {
	// class 0 clusters near x=0, class 1 near x=10; second column is noise
	pts := []float64{
		0.1, 5,
		-0.2, 3,
		0.3, 4,
		0.0, 6,
		9.8, 5,
		10.2, 3,
		9.9, 4,
		10.1, 6,
	}
	classes := []int{0, 0, 0, 0, 1, 1, 1, 1}
	return mat.NewDense(8, 2, pts), classes
}

func TestLearnSeparable(t *testing.T) {
	X, classes := separableData()
	cls, ok := Learn(X, classes, regression.DefaultConfig())
	if !ok {
		t.Fatal("learning failed on separable data")
	}
	for i := 0; i < 8; i++ {
		got := cls.Classify(mat.Row(nil, i, X))
		if got != classes[i] {
			t.Fatalf("point %d classified %d, expected %d", i, got, classes[i])
		}
	}
}

func TestLearnOrientation(t *testing.T) {
	// swap the cluster sides so class 1 sits below class 0
	X, classes := separableData()
	for i := range classes {
		classes[i] = 1 - classes[i]
	}
	cls, ok := Learn(X, classes, regression.DefaultConfig())
	if !ok {
		t.Fatal("learning failed")
	}
	if cls.Classify([]float64{0, 5}) != 1 || cls.Classify([]float64{10, 5}) != 0 {
		t.Fatal("classifier not oriented toward class 1")
	}
}

func TestLearnSingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	if _, ok := Learn(X, []int{1, 1, 1}, regression.DefaultConfig()); ok {
		t.Fatal("learning should fail with one class")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	X, classes := separableData()
	cls, _ := Learn(X, classes, regression.DefaultConfig())
	x := []float64{5.3, 4}
	first := cls.Classify(x)
	for i := 0; i < 10; i++ {
		if cls.Classify(x) != first {
			t.Fatal("repeated classification disagrees")
		}
	}
}
