package mixture

import "testing"

func collect(g *assignmentGenerator, slots int) [][]int {
	var out [][]int
	comb := make([]int, slots)
	for g.Next(comb) {
		out = append(out, append([]int(nil), comb...))
	}
	return out
}

func TestAssignmentGeneratorEnumerates(t *testing.T) {
	g := newAssignmentGenerator([][]int{{1, 2}, {3}}, true)
	got := collect(g, 2)
	want := [][]int{{1, 3}, {2, 3}}
	if len(got) != len(want) {
		t.Fatalf("got %v, expected %v", got, want)
	}
	for i := range want {
		if got[i][0] != want[i][0] || got[i][1] != want[i][1] {
			t.Fatalf("got %v, expected %v", got, want)
		}
	}
}

func TestAssignmentGeneratorNoRepeat(t *testing.T) {
	g := newAssignmentGenerator([][]int{{1, 2}, {1, 2}}, false)
	got := collect(g, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 injective assignments, got %v", got)
	}
	for _, c := range got {
		if c[0] == c[1] {
			t.Fatalf("repeated value in %v", c)
		}
	}
}

func TestAssignmentGeneratorEmptySlot(t *testing.T) {
	g := newAssignmentGenerator([][]int{{1}, {}}, true)
	if g.Next(make([]int, 2)) {
		t.Fatal("generator with an empty slot should produce nothing")
	}
}

func TestAssignmentGeneratorReset(t *testing.T) {
	g := newAssignmentGenerator([][]int{{4, 5}}, true)
	first := collect(g, 1)
	g.Reset()
	second := collect(g, 1)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("reset did not rewind: %v vs %v", first, second)
	}
}
