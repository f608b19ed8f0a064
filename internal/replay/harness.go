package replay

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/bank"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/engine"
)

// #region types

// Result captures the outcome of replaying one event.
type Result struct {
	EventIndex   int
	SessionID    string
	Significance float64
	Threshold    float64
	Triggered    bool
	Loss         *float64

	// Match is the comparison against the fixture's expected decision.
	// "OK", "DIFF", or "-" when the fixture carries no expectations.
	Match string
}

// Summary aggregates a replay run.
type Summary struct {
	TotalEvents int
	Triggered   int
	Decayed     int
	Matches     int
	Diffs       int
	FinalReport engine.Report
}

// #endregion types

// #region replay

// Replay runs a fixture's event stream through a fresh engine over an
// in-memory bank and compares each trigger decision with the fixture's
// expectation. Deterministic for a fixed fixture: seeded initialization,
// no wall-clock inputs.
func Replay(f *Fixture) ([]Result, Summary, error) {
	cfg := f.Config.ToConfig()
	eng, err := engine.New(cfg, bank.NewMemoryBank())
	if err != nil {
		return nil, Summary{}, fmt.Errorf("build engine: %w", err)
	}

	results := make([]Result, 0, len(f.Events))
	var summary Summary

	for i, fe := range f.Events {
		ev := engine.Observation(fe.Input)
		if fe.Target != nil {
			ev = engine.Supervised(fe.Input, fe.Target)
		}

		res, err := eng.ProcessEvent(fe.SessionID, ev, fe.Force)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("event %d: %w", i, err)
		}

		r := Result{
			EventIndex:   i,
			SessionID:    fe.SessionID,
			Significance: res.Significance,
			Threshold:    res.Threshold,
			Triggered:    res.Triggered,
			Loss:         res.Loss,
			Match:        "-",
		}
		if len(f.Expected) != 0 {
			if res.Triggered == f.Expected[i].Triggered {
				r.Match = "OK"
				summary.Matches++
			} else {
				r.Match = "DIFF"
				summary.Diffs++
			}
		}

		if res.Triggered {
			summary.Triggered++
		} else {
			summary.Decayed++
		}
		results = append(results, r)
	}

	summary.TotalEvents = len(results)
	summary.FinalReport = eng.Metrics()
	return results, summary, nil
}

// #endregion replay
