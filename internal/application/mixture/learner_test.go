package mixture

import (
	"bytes"
	"math"
	"testing"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
)

func ballSig() *scene.Signature {
	s := &scene.Signature{}
	s.Add(scene.Entry{ID: 1, Type: "ball", Name: "b1", Props: []string{"x"}})
	return s
}

func ballWallSig() *scene.Signature {
	s := &scene.Signature{}
	s.Add(scene.Entry{ID: 1, Type: "ball", Name: "b1", Props: []string{"x"}})
	s.Add(scene.Entry{ID: 2, Type: "wall", Name: "w", Props: []string{"h"}})
	return s
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 1
	return cfg
}

func TestLearnValidation(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()

	if err := l.Learn(1, sig, relation.Table{}, []float64{0}, 0); err == nil {
		t.Fatal("out-of-range target accepted")
	}
	if err := l.Learn(0, sig, relation.Table{}, []float64{0, 1}, 0); err == nil {
		t.Fatal("width mismatch accepted")
	}
	if err := l.Learn(0, sig, relation.Table{}, []float64{0.5}, 1); err != nil {
		t.Fatalf("valid observation rejected: %v", err)
	}
	if l.NumObservations() != 1 || l.NumModes() != 1 {
		t.Fatalf("observations=%d modes=%d after first point", l.NumObservations(), l.NumModes())
	}
}

// Feeding one linear regime must produce exactly one fitted mode that
// predicts the regime.
func TestSingleModeDiscovery(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		if err := l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1); err != nil {
			t.Fatalf("learn failed at %d: %v", i, err)
		}
	}

	if !l.Run(50) {
		t.Fatal("Run did not reach quiescence")
	}
	if l.NumModes() != 2 {
		t.Fatalf("expected noise + 1 mode, got %d modes", l.NumModes())
	}
	if l.modes[0].size() != 0 {
		t.Fatalf("%d points left in noise", l.modes[0].size())
	}
	if l.modes[1].size() != 300 {
		t.Fatalf("mode 1 holds %d points, expected 300", l.modes[1].size())
	}

	// every point's map mode agrees with its posterior
	for i, d := range l.data {
		if d.MapMode != argmax(d.ModeProb) {
			t.Fatalf("point %d: map mode %d disagrees with posterior %v", i, d.MapMode, d.ModeProb)
		}
	}

	mode, y, ok := l.Predict(0, ballSig(), relation.Table{}, []float64{0.355})
	if !ok || mode != 1 {
		t.Fatalf("Predict = (mode %d, ok %t), expected mode 1", mode, ok)
	}
	if math.Abs(y-(2*0.355+1)) > 1e-6 {
		t.Fatalf("Predict y = %g, expected %g", y, 2*0.355+1)
	}
}

// More points on a line an existing mode already models must be absorbed by
// that mode, not split into a new one.
func TestUnifyWithExistingMode(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	if !l.Run(50) {
		t.Fatal("first run did not converge")
	}

	for i := 0; i < 300; i++ {
		x := 5 + float64(i)*0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	if !l.Run(50) {
		t.Fatal("second run did not converge")
	}

	if l.NumModes() != 2 {
		t.Fatalf("unification created a mode: %d modes", l.NumModes())
	}
	if l.modes[1].size() != 600 {
		t.Fatalf("mode 1 holds %d points, expected 600", l.modes[1].size())
	}
}

// With several same-type candidates and no object clauses to choose between
// them, classification must settle on the lowest object id, every time.
func TestPredictPicksLowestObjectOnTies(t *testing.T) {
	l := New(testConfig(), nil)
	l.EnableFOIL(false)
	sig := ballWallSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		h := 3 + float64(i%17)*0.5
		l.Learn(0, sig, relation.Table{}, []float64{x, h}, -3*x+h)
	}
	if !l.Run(50) {
		t.Fatal("run did not converge")
	}

	qsig := &scene.Signature{}
	qsig.Add(scene.Entry{ID: 1, Type: "ball", Name: "b1", Props: []string{"x"}})
	qsig.Add(scene.Entry{ID: 2, Type: "wall", Name: "w1", Props: []string{"h"}})
	qsig.Add(scene.Entry{ID: 3, Type: "wall", Name: "w2", Props: []string{"h"}})

	want := -3*0.42 + 4.5
	for i := 0; i < 50; i++ {
		mode, y, ok := l.Predict(0, qsig, relation.Table{}, []float64{0.42, 4.5, 8.0})
		if !ok || mode != 1 {
			t.Fatalf("iteration %d: Predict = (mode %d, ok %t)", i, mode, ok)
		}
		if math.Abs(y-want) > 1e-9 {
			t.Fatalf("iteration %d: y = %g, want %g (wall 2)", i, y, want)
		}
	}
}

// checkPartition asserts every observation belongs to exactly the mode its
// map mode names, and that memberships cover the data with no leaks.
func checkPartition(t *testing.T, l *Learner) {
	t.Helper()
	total := 0
	for _, m := range l.modes {
		total += m.size()
	}
	if total != len(l.data) {
		t.Fatalf("memberships cover %d of %d observations", total, len(l.data))
	}
	for i, d := range l.data {
		if !l.modes[d.MapMode].hasMember(i) {
			t.Fatalf("observation %d missing from its map mode %d", i, d.MapMode)
		}
	}
}

func TestPartitionInvariant(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	checkPartition(t, l)
	l.Run(50)
	checkPartition(t, l)

	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		h := 3 + float64(i%17)*0.501
		rels := relation.Table{"near": relation.New(3)}
		rels["near"].Add(0, 1, 2)
		l.Learn(0, ballWallSig(), rels, []float64{x, h}, -3*x+h)
	}
	checkPartition(t, l)
	l.Run(50)
	checkPartition(t, l)

	// identical queries classify identically
	rels := relation.Table{"near": relation.New(3)}
	rels["near"].Add(0, 1, 2)
	m0, y0, ok0 := l.Predict(0, ballWallSig(), rels, []float64{0.42, 4.5})
	for i := 0; i < 20; i++ {
		m, y, ok := l.Predict(0, ballWallSig(), rels, []float64{0.42, 4.5})
		if m != m0 || y != y0 || ok != ok0 {
			t.Fatalf("iteration %d: classification drifted from (%d, %g, %t) to (%d, %g, %t)",
				i, m0, y0, ok0, m, y, ok)
		}
	}
}

func TestBestMode(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	l.Run(50)

	mode, residual := l.BestMode(0, ballSig(), []float64{0.5}, 2)
	if mode != 1 {
		t.Fatalf("BestMode = %d, expected 1", mode)
	}
	if math.Abs(residual) > 1e-9 {
		t.Fatalf("residual = %g, expected 0", residual)
	}
}

// When only noise explains the point, the diagnostic has no model error to
// report.
func TestBestModeNoiseResidual(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 5; i++ {
		x := float64(i)
		l.Learn(0, sig, relation.Table{}, []float64{x}, 10*x)
	}

	mode, residual := l.BestMode(0, ballSig(), []float64{3}, 30)
	if mode != 0 {
		t.Fatalf("BestMode = %d, expected noise", mode)
	}
	if !math.IsNaN(residual) {
		t.Fatalf("noise residual = %g, expected NaN", residual)
	}
}

// With too little data for any mode, prediction falls back to the signature
// bucket's locally weighted model.
func TestPredictLWRFallback(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 5; i++ {
		x := float64(i)
		l.Learn(0, sig, relation.Table{}, []float64{x}, 10*x)
	}
	l.Run(10)

	mode, y, ok := l.Predict(0, ballSig(), relation.Table{}, []float64{3})
	if !ok || mode != 0 {
		t.Fatalf("Predict = (mode %d, ok %t), expected noise fallback", mode, ok)
	}
	if y != 30 {
		t.Fatalf("fallback y = %g, expected 30", y)
	}

	// unseen signature has no fallback data
	if _, _, ok := l.Predict(0, ballWallSig(), relation.Table{}, []float64{3, 1}); ok {
		t.Fatal("prediction succeeded for unknown signature")
	}
}

func TestLargestConstSubset(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 10; i++ {
		l.Learn(0, sig, relation.Table{}, []float64{float64(i)}, 5)
	}
	for i := 0; i < 3; i++ {
		l.Learn(0, sig, relation.Table{}, []float64{float64(100 + i)}, 7)
	}
	// same output under a different signature must not join the run
	for i := 0; i < 6; i++ {
		l.Learn(0, ballWallSig(), relation.Table{}, []float64{float64(i), 1}, 5)
	}

	run := l.largestConstSubset(l.modes[0])
	if len(run) != 10 {
		t.Fatalf("largest constant run = %d points, expected 10", len(run))
	}
	for _, i := range run {
		if l.data[i].Y != 5 || l.data[i].SigIndex != 0 {
			t.Fatalf("point %d (y=%g, sig %d) in the y=5 run of bucket 0", i, l.data[i].Y, l.data[i].SigIndex)
		}
	}
}

// A constant-output run spread over two differently shaped signatures must
// not be fitted as one mode; only a run within a single bucket seeds a fit.
func TestConstRunRespectsSignatureBuckets(t *testing.T) {
	l := New(testConfig(), nil)
	for i := 0; i < 250; i++ {
		l.Learn(0, ballSig(), relation.Table{}, []float64{float64(i)}, 5)
	}
	for i := 0; i < 150; i++ {
		l.Learn(0, ballWallSig(), relation.Table{}, []float64{float64(i), 1}, 5)
	}

	if !l.Run(50) {
		t.Fatal("run did not converge")
	}
	if l.NumModes() != 2 {
		t.Fatalf("expected noise + 1 constant mode, got %d modes", l.NumModes())
	}
	if !l.modes[1].sig.Empty() {
		t.Fatalf("constant mode carries a signature of %d objects", l.modes[1].sig.Len())
	}
	// the constant model claims matching points from both buckets
	if l.modes[1].size() != 400 {
		t.Fatalf("constant mode holds %d points, expected 400", l.modes[1].size())
	}

	mode, y, ok := l.Predict(0, ballSig(), relation.Table{}, []float64{42})
	if !ok || mode != 1 || math.Abs(y-5) > 1e-9 {
		t.Fatalf("Predict = (mode %d, y %g, ok %t), expected constant 5", mode, y, ok)
	}
}

func TestRemoveModes(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 5; i++ {
		l.Learn(0, sig, relation.Table{}, []float64{float64(i)}, float64(i))
	}

	// fabricate a starved mode holding one migrated point
	m := newMode(false)
	l.modes = append(l.modes, m)
	for _, d := range l.data {
		d.ModeProb = append(d.ModeProb, 0)
		d.ProbStale = append(d.ProbStale, false)
	}
	for _, mo := range l.modes {
		for len(mo.classifiers) < len(l.modes) {
			mo.classifiers = append(mo.classifiers, nil)
		}
	}
	l.delExample(l.modes[0], 0)
	delete(l.noiseBySig[l.data[0].SigIndex], 0)
	l.addExample(m, 0)
	l.data[0].MapMode = 1

	if !l.removeModes() {
		t.Fatal("starved mode not removed")
	}
	if l.NumModes() != 1 {
		t.Fatalf("modes = %d after removal, expected 1", l.NumModes())
	}
	if l.data[0].MapMode != 0 {
		t.Fatalf("orphaned point maps to mode %d, expected 0", l.data[0].MapMode)
	}
	if l.modes[0].size() != 5 {
		t.Fatalf("noise holds %d points after removal, expected 5", l.modes[0].size())
	}
	if !l.noiseBySig[l.data[0].SigIndex][0] {
		t.Fatal("orphaned point missing from noise signature bucket")
	}
	for i, d := range l.data {
		if len(d.ModeProb) != 1 || len(d.ProbStale) != 1 {
			t.Fatalf("point %d posterior not compacted", i)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	l.Run(50)

	var buf bytes.Buffer
	if err := l.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	back, err := Load(&buf, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if back.NumModes() != l.NumModes() || back.NumObservations() != l.NumObservations() {
		t.Fatalf("restored learner has %d modes / %d observations, expected %d / %d",
			back.NumModes(), back.NumObservations(), l.NumModes(), l.NumObservations())
	}

	for _, x := range []float64{0.1, 0.95, 2.5} {
		m1, y1, ok1 := l.Predict(0, ballSig(), relation.Table{}, []float64{x})
		m2, y2, ok2 := back.Predict(0, ballSig(), relation.Table{}, []float64{x})
		if m1 != m2 || ok1 != ok2 || math.Abs(y1-y2) > 1e-12 {
			t.Fatalf("prediction diverged after round trip at x=%g: (%d,%g,%t) vs (%d,%g,%t)",
				x, m1, y1, ok1, m2, y2, ok2)
		}
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte(`{"modes":[]}`)), nil); err == nil {
		t.Fatal("snapshot without noise mode accepted")
	}
	if _, err := Load(bytes.NewReader([]byte(`not json`)), nil); err == nil {
		t.Fatal("invalid JSON accepted")
	}
}

// Two regimes over different scene structures: y = 2x+1 for a lone ball,
// y = -3x + h when a wall of height h is nearby. The learner must form two
// modes and route novel scenes by structure.
func TestTwoRegimes(t *testing.T) {
	l := New(testConfig(), nil)

	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		if err := l.Learn(0, ballSig(), relation.Table{}, []float64{x}, 2*x+1); err != nil {
			t.Fatalf("learn regime A: %v", err)
		}
	}
	if !l.Run(50) {
		t.Fatal("first run did not converge")
	}

	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		// wall heights chosen so no point also satisfies regime A's line
		h := 3 + float64(i%17)*0.501
		rels := relation.Table{"near": relation.New(3)}
		rels["near"].Add(0, 1, 2)
		if err := l.Learn(0, ballWallSig(), rels, []float64{x, h}, -3*x+h); err != nil {
			t.Fatalf("learn regime B: %v", err)
		}
	}
	if !l.Run(50) {
		t.Fatal("second run did not converge")
	}

	if l.NumModes() != 3 {
		t.Fatalf("expected noise + 2 modes, got %d", l.NumModes())
	}
	if l.modes[0].size() != 0 {
		t.Fatalf("%d points left in noise", l.modes[0].size())
	}

	// lone-ball scene routes to the first regime
	mode, y, ok := l.Predict(0, ballSig(), relation.Table{}, []float64{0.42})
	if !ok || math.Abs(y-(2*0.42+1)) > 1e-6 {
		t.Fatalf("regime A predict = (mode %d, y %g, ok %t)", mode, y, ok)
	}

	// ball-wall scene routes to the second
	rels := relation.Table{"near": relation.New(3)}
	rels["near"].Add(0, 1, 2)
	mode, y, ok = l.Predict(0, ballWallSig(), rels, []float64{0.42, 4.5})
	if !ok || math.Abs(y-(-3*0.42+4.5)) > 1e-6 {
		t.Fatalf("regime B predict = (mode %d, y %g, ok %t)", mode, y, ok)
	}
}

func TestInspectSmoke(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	l.Run(50)

	for _, args := range [][]string{
		nil,
		{"modes"},
		{"mode", "1"},
		{"ptable"},
		{"train"},
		{"relations"},
		{"classifiers"},
		{"stats"},
	} {
		var buf bytes.Buffer
		if err := l.Inspect(&buf, args...); err != nil {
			t.Fatalf("Inspect(%v) failed: %v", args, err)
		}
		if buf.Len() == 0 {
			t.Fatalf("Inspect(%v) wrote nothing", args)
		}
	}

	var buf bytes.Buffer
	if err := l.Inspect(&buf, "bogus"); err == nil {
		t.Fatal("unknown subquery accepted")
	}
}

func TestStatsCounters(t *testing.T) {
	l := New(testConfig(), nil)
	sig := ballSig()
	for i := 0; i < 300; i++ {
		x := float64(i) * 0.01
		l.Learn(0, sig, relation.Table{}, []float64{x}, 2*x+1)
	}
	l.Run(50)

	s := l.Stats()
	if s.Observations != 300 || s.Modes != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.EStepCount == 0 || s.MStepCount == 0 || s.RunCount != 1 {
		t.Fatalf("counters not updated: %+v", s)
	}
	if !s.LastRunConverged {
		t.Fatal("convergence not recorded")
	}
}
