package checkpoint

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(DefaultSQLiteConfig())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seed saves n checkpoints with strictly increasing timestamps so ordering
// assertions are unambiguous.
func seed(t *testing.T, store *SQLiteStore, n int) []*Checkpoint {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	cps := make([]*Checkpoint, n)
	for i := range cps {
		cp := NewCheckpoint("run", 100*(i+1), 2, []byte{byte(i), 1, 2, 3})
		cp.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Save(ctx, cp); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
		cps[i] = cp
	}
	return cps
}

func TestSQLiteStoreSaveGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := NewCheckpoint("baseline", 300, 2, []byte(`{"modes":[]}`))
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, cp.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("checkpoint not found")
	}
	if got.Name != "baseline" || got.Observations != 300 || got.Modes != 2 {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if string(got.Snapshot) != `{"modes":[]}` {
		t.Errorf("snapshot mismatch: %q", got.Snapshot)
	}
	if got.CreatedAt.UnixMilli() != cp.CreatedAt.UnixMilli() {
		t.Errorf("created at %v, want %v", got.CreatedAt, cp.CreatedAt)
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing checkpoint, got %+v", got)
	}
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := NewCheckpoint("run", 100, 2, []byte("v1"))
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	cp.Observations = 200
	cp.Snapshot = []byte("v2")
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := store.Get(ctx, cp.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Observations != 200 || string(got.Snapshot) != "v2" {
		t.Errorf("replace not applied: %+v snapshot=%q", got, got.Snapshot)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 checkpoint after replace, got %d", len(list))
	}
}

func TestSQLiteStoreList(t *testing.T) {
	store := newTestStore(t)
	cps := seed(t, store, 5)

	list, err := store.List(context.Background(), 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(list))
	}
	// newest first
	for i, want := range []*Checkpoint{cps[4], cps[3], cps[2]} {
		if list[i].ID != want.ID {
			t.Errorf("position %d: got %s, want %s", i, list[i].ID, want.ID)
		}
		if list[i].Snapshot != nil {
			t.Errorf("position %d: listing returned a snapshot blob", i)
		}
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cps := seed(t, store, 2)

	if err := store.Delete(ctx, cps[0].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, err := store.Get(ctx, cps[0].ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Error("checkpoint still present after delete")
	}
	if got, _ := store.Get(ctx, cps[1].ID); got == nil {
		t.Error("delete removed the wrong checkpoint")
	}
}

func TestSQLiteStorePrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cps := seed(t, store, 6)

	pruned, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 4 {
		t.Errorf("pruned %d checkpoints, want 4", pruned)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(list))
	}
	if list[0].ID != cps[5].ID || list[1].ID != cps[4].ID {
		t.Errorf("prune kept the wrong checkpoints: %s, %s", list[0].ID, list[1].ID)
	}

	// pruning below the current count is a no-op
	pruned, err = store.Prune(ctx, 10)
	if err != nil {
		t.Fatalf("second prune failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("second prune removed %d checkpoints, want 0", pruned)
	}
}

func TestSQLiteStoreStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 3)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCheckpoints != 3 {
		t.Errorf("total checkpoints = %d, want 3", stats.TotalCheckpoints)
	}
	if stats.TotalBytes != 12 {
		t.Errorf("total bytes = %d, want 12", stats.TotalBytes)
	}

	if _, err := store.Prune(ctx, 1); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed after prune: %v", err)
	}
	if stats.TotalCheckpoints != 1 || stats.PrunedCount != 2 {
		t.Errorf("stats after prune = %+v", stats)
	}
}
