package logging

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempLog(t *testing.T) *EventLog {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l, err := NewEventLog(db)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	return l
}

func TestLogAndRecent(t *testing.T) {
	l := tempLog(t)

	loss := 0.125
	entries := []EventEntry{
		{SessionID: "alice", EventIndex: 1, Significance: 0.1, Threshold: 0.5, Triggered: false},
		{SessionID: "alice", EventIndex: 2, Significance: 0.9, Threshold: 0.48, Triggered: true, Loss: &loss},
		{SessionID: "bob", EventIndex: 1, Significance: 0.2, Threshold: 0.5, Triggered: false},
	}
	for i, e := range entries {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	got, err := l.Recent("alice", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alice entries, got %d", len(got))
	}
	for _, e := range got {
		if e.SessionID != "alice" {
			t.Fatalf("foreign session leaked: %s", e.SessionID)
		}
		if e.EventID == "" {
			t.Fatal("expected an assigned event ID")
		}
	}
}

func TestLossNullability(t *testing.T) {
	l := tempLog(t)

	loss := 0.5
	l.Log(EventEntry{SessionID: "alice", EventIndex: 1, Triggered: true, Loss: &loss})
	l.Log(EventEntry{SessionID: "alice", EventIndex: 2, Triggered: false})

	got, err := l.Recent("alice", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	var withLoss, withoutLoss int
	for _, e := range got {
		if e.Loss != nil {
			withLoss++
			if *e.Loss != 0.5 {
				t.Fatalf("loss round trip: got %g, want 0.5", *e.Loss)
			}
		} else {
			withoutLoss++
		}
	}
	if withLoss != 1 || withoutLoss != 1 {
		t.Fatalf("expected one entry each way, got %d with and %d without", withLoss, withoutLoss)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	l := tempLog(t)
	for i := 0; i < 5; i++ {
		if err := l.Log(EventEntry{SessionID: "alice", EventIndex: i + 1}); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	got, err := l.Recent("alice", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
}
