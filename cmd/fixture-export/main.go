package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/replay"
)

// #region main

func main() {
	outPath := flag.String("out", "", "output fixture JSON path")
	events := flag.Int("events", 12, "number of events to generate")
	sessions := flag.Int("sessions", 2, "number of interleaved sessions")
	inputSize := flag.Int("input-size", 8, "input vector width")
	hiddenSize := flag.Int("hidden-size", 16, "hidden state width")
	seed := flag.Int64("seed", 1, "stream and engine seed")
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --out path/to/fixture.json [--events N] [--sessions N] [--seed S]")
		os.Exit(2)
	}

	if err := run(*outPath, *events, *sessions, *inputSize, *hiddenSize, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region generate

// run synthesizes a seeded event stream, replays it once, and freezes the
// observed trigger decisions as the fixture's expectations. The written
// fixture is a self-consistent regression input for cmd/replay.
func run(outPath string, events, sessions, inputSize, hiddenSize int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))

	f := &replay.Fixture{
		Description: fmt.Sprintf("Generated stream: %d events across %d sessions (seed %d)", events, sessions, seed),
		Config: replay.FixtureConfig{
			InputSize:       inputSize,
			HiddenSize:      hiddenSize,
			PredictorHidden: 2 * inputSize,
			Seed:            seed,
		},
	}

	for i := 0; i < events; i++ {
		input := make([]float64, inputSize)
		for j := range input {
			input[j] = rng.NormFloat64()
		}
		f.Events = append(f.Events, replay.FixtureEvent{
			SessionID: fmt.Sprintf("session-%d", i%sessions),
			Input:     input,
			// A forced warmup event per session pins early behavior.
			Force: i < sessions,
		})
	}

	results, summary, err := replay.Replay(f)
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}
	for _, r := range results {
		f.Expected = append(f.Expected, replay.FixtureExpected{Triggered: r.Triggered})
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d events, %d triggered, %d decayed)\n",
		outPath, summary.TotalEvents, summary.Triggered, summary.Decayed)
	return nil
}

// #endregion generate
