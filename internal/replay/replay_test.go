package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func testFixture() *Fixture {
	return &Fixture{
		Description: "forced updates followed by quiet events",
		Config: FixtureConfig{
			InputSize:       2,
			HiddenSize:      4,
			PredictorHidden: 8,
			Seed:            42,
		},
		Events: []FixtureEvent{
			{SessionID: "alice", Input: []float64{0, 0}, Force: true},
			{SessionID: "alice", Input: []float64{0, 0}},
			{SessionID: "bob", Input: []float64{0, 0}},
		},
		Expected: []FixtureExpected{
			{Triggered: true},
			{Triggered: false},
			{Triggered: false},
		},
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	body := `{
		"description": "two events",
		"config": {"input_size": 2, "hidden_size": 4, "predictor_hidden": 8, "seed": 7},
		"events": [
			{"session_id": "alice", "input": [0, 0], "force": true},
			{"session_id": "alice", "input": [1, -1], "target": [0, 0, 0, 0]}
		],
		"expected": [{"triggered": true}, {"triggered": false}]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Events) != 2 || len(f.Expected) != 2 {
		t.Fatalf("parsed %d events, %d expected", len(f.Events), len(f.Expected))
	}
	if f.Events[1].Target == nil {
		t.Fatal("supervised target lost in parsing")
	}

	cfg := f.Config.ToConfig()
	if cfg.InputSize != 2 || cfg.HiddenSize != 4 {
		t.Fatalf("config override lost: %d, %d", cfg.InputSize, cfg.HiddenSize)
	}
	// Unset fields fall back to defaults.
	if cfg.DecayFactor == 0 {
		t.Fatal("defaults not merged")
	}
}

func TestLoadFixtureRejectsCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	body := `{
		"config": {"input_size": 2, "hidden_size": 4},
		"events": [{"session_id": "a", "input": [0, 0]}],
		"expected": [{"triggered": false}, {"triggered": true}]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for expected/events count mismatch")
	}
}

func TestReplayMatchesExpectations(t *testing.T) {
	results, summary, err := Replay(testFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if summary.TotalEvents != 3 {
		t.Fatalf("total events: got %d, want 3", summary.TotalEvents)
	}
	if summary.Diffs != 0 || summary.Matches != 3 {
		t.Fatalf("expected 3 matches, got %d matches %d diffs", summary.Matches, summary.Diffs)
	}
	for i, r := range results {
		if r.Match != "OK" {
			t.Fatalf("event %d: match %s", i, r.Match)
		}
	}
	if !results[0].Triggered || results[0].Loss == nil {
		t.Fatal("forced event must trigger with a loss")
	}
	if results[1].Triggered {
		t.Fatal("quiet zero event must not trigger")
	}
}

func TestReplayDeterministic(t *testing.T) {
	run := func() []float64 {
		results, _, err := Replay(testFixture())
		if err != nil {
			t.Fatalf("Replay: %v", err)
		}
		sigs := make([]float64, len(results))
		for i, r := range results {
			sigs[i] = r.Significance
		}
		return sigs
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at event %d: %g != %g", i, a[i], b[i])
		}
	}
}

func TestReplayWithoutExpectations(t *testing.T) {
	f := testFixture()
	f.Expected = nil

	results, summary, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if summary.Matches != 0 || summary.Diffs != 0 {
		t.Fatalf("expected no comparisons, got %d/%d", summary.Matches, summary.Diffs)
	}
	for i, r := range results {
		if r.Match != "-" {
			t.Fatalf("event %d: match %s, want -", i, r.Match)
		}
	}
}
