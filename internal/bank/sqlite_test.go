package bank

import (
	"math"
	"path/filepath"
	"testing"
)

func tempBank(t *testing.T) *SQLiteBank {
	t.Helper()
	b, err := NewSQLiteBank(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBank: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteRoundTrip(t *testing.T) {
	b := tempBank(t)

	hidden := []float64{1.5, -2.25, 0}
	cell := []float64{0.125, 3, -1}
	if err := b.Store("alice", hidden, cell); err != nil {
		t.Fatalf("Store: %v", err)
	}

	h, c, ok, err := b.Retrieve("alice")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !ok {
		t.Fatal("expected stored session to exist")
	}
	for i := range hidden {
		if h[i] != hidden[i] || c[i] != cell[i] {
			t.Fatalf("index %d: got (%g, %g), want (%g, %g)", i, h[i], c[i], hidden[i], cell[i])
		}
	}

	_, _, ok, err = b.Retrieve("nobody")
	if err != nil {
		t.Fatalf("Retrieve unseen: %v", err)
	}
	if ok {
		t.Fatal("unseen session reported as present")
	}
}

func TestSQLiteStoreKeepsHistory(t *testing.T) {
	b := tempBank(t)

	b.Store("alice", []float64{1}, []float64{1})
	b.Store("alice", []float64{2}, []float64{2})

	// The active pointer follows the newest snapshot.
	h, _, _, err := b.Retrieve("alice")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if h[0] != 2 {
		t.Fatalf("active state: got %g, want 2", h[0])
	}

	// Both snapshots remain.
	infos, err := b.ListSnapshots("alice", 10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(infos))
	}
}

func TestSQLiteRollback(t *testing.T) {
	b := tempBank(t)

	b.Store("alice", []float64{1, 0}, []float64{1, 0})
	b.Store("alice", []float64{5, 0}, []float64{5, 0})

	infos, err := b.ListSnapshots("alice", 10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}

	// Find the first snapshot by its norm.
	var firstID string
	for _, info := range infos {
		if math.Abs(info.HiddenNorm-1) < 1e-9 {
			firstID = info.SnapshotID
		}
	}
	if firstID == "" {
		t.Fatal("first snapshot not found")
	}

	if err := b.Rollback("alice", firstID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	h, _, _, err := b.Retrieve("alice")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if h[0] != 1 {
		t.Fatalf("rolled-back state: got %g, want 1", h[0])
	}

	if err := b.Rollback("alice", "no-such-snapshot"); err == nil {
		t.Fatal("expected error for unknown snapshot")
	}
	if err := b.Rollback("bob", firstID); err == nil {
		t.Fatal("expected error for snapshot of another session")
	}
}

func TestSQLiteDeleteAndList(t *testing.T) {
	b := tempBank(t)

	b.Store("alice", []float64{1}, []float64{1})
	b.Store("bob", []float64{1}, []float64{1})

	ids, err := b.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Fatalf("unexpected sessions: %v", ids)
	}

	existed, err := b.Delete("alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report true")
	}

	existed, _ = b.Delete("alice")
	if existed {
		t.Fatal("second delete must report false")
	}

	infos, err := b.ListSnapshots("alice", 10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected snapshots gone after delete, got %d", len(infos))
	}
}

func TestSQLiteClear(t *testing.T) {
	b := tempBank(t)
	b.Store("alice", []float64{1}, []float64{1})
	b.Store("bob", []float64{1}, []float64{1})

	if err := b.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ids, _ := b.ListSessions()
	if len(ids) != 0 {
		t.Fatalf("expected empty bank after clear, got %v", ids)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	src := []float64{0, 1.5, -2.25, math.Pi, math.MaxFloat64, -math.SmallestNonzeroFloat64}
	got := decodeVector(encodeVector(src))
	if len(got) != len(src) {
		t.Fatalf("length mismatch: %d != %d", len(got), len(src))
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("index %d: %g != %g", i, got[i], src[i])
		}
	}
}
