package bank

import "testing"

func TestMemoryBankRoundTrip(t *testing.T) {
	b := NewMemoryBank()

	if err := b.Store("alice", []float64{1, 2}, []float64{3, 4}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	h, c, ok, err := b.Retrieve("alice")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !ok {
		t.Fatal("expected stored session to exist")
	}
	if h[0] != 1 || h[1] != 2 || c[0] != 3 || c[1] != 4 {
		t.Fatalf("round trip mismatch: %v %v", h, c)
	}
}

func TestMemoryBankUnseenSession(t *testing.T) {
	b := NewMemoryBank()
	_, _, ok, err := b.Retrieve("nobody")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ok {
		t.Fatal("unseen session reported as present")
	}
}

func TestMemoryBankSessionIsolation(t *testing.T) {
	b := NewMemoryBank()
	b.Store("alice", []float64{1}, []float64{1})
	b.Store("bob", []float64{2}, []float64{2})

	h, _, _, _ := b.Retrieve("alice")
	if h[0] != 1 {
		t.Fatalf("alice state clobbered: %v", h)
	}

	b.Store("alice", []float64{9}, []float64{9})
	h, _, _, _ = b.Retrieve("bob")
	if h[0] != 2 {
		t.Fatalf("bob state clobbered: %v", h)
	}
}

func TestMemoryBankDetachedCopies(t *testing.T) {
	b := NewMemoryBank()
	src := []float64{1, 2}
	b.Store("alice", src, src)

	// Mutating the caller slice must not reach the committed snapshot.
	src[0] = 99
	h, _, _, _ := b.Retrieve("alice")
	if h[0] != 1 {
		t.Fatal("Store aliased the caller slice")
	}

	// Mutating a retrieved slice must not reach the committed snapshot.
	h[0] = 42
	h2, _, _, _ := b.Retrieve("alice")
	if h2[0] != 1 {
		t.Fatal("Retrieve returned an aliased slice")
	}
}

func TestMemoryBankDelete(t *testing.T) {
	b := NewMemoryBank()
	b.Store("alice", []float64{1}, []float64{1})

	existed, err := b.Delete("alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatal("expected delete of stored session to report true")
	}

	existed, err = b.Delete("alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if existed {
		t.Fatal("second delete must report false")
	}
}

func TestMemoryBankListAndClear(t *testing.T) {
	b := NewMemoryBank()
	b.Store("charlie", []float64{1}, []float64{1})
	b.Store("alice", []float64{1}, []float64{1})
	b.Store("bob", []float64{1}, []float64{1})

	ids, err := b.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	want := []string{"alice", "bob", "charlie"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted order broken at %d: got %s, want %s", i, ids[i], want[i])
		}
	}

	if err := b.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ids, _ = b.ListSessions()
	if len(ids) != 0 {
		t.Fatalf("expected empty bank after clear, got %v", ids)
	}
}
