package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	jsonOut := flag.Bool("json", false, "output results as JSON instead of a table")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *jsonOut))
}

func run(path string, jsonOut bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, summary, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	if jsonOut {
		if err := printJSON(results, summary); err != nil {
			fmt.Fprintf(os.Stderr, "output: %v\n", err)
			return 2
		}
	} else {
		printTable(f.Description, results, summary)
	}

	if summary.Diffs > 0 {
		return 1
	}
	return 0
}

// #endregion main

// #region output

func printTable(description string, results []replay.Result, summary replay.Summary) {
	if description != "" {
		fmt.Println(description)
		fmt.Println()
	}

	fmt.Printf("%-6s| %-12s| %-12s| %-12s| %-9s| %-10s| %s\n",
		"Event", "Session", "Significance", "Threshold", "Triggered", "Loss", "Match")
	fmt.Printf("%-6s+%-13s+%-13s+%-13s+%-10s+%-11s+%s\n",
		"------", "-------------", "-------------", "-------------", "---------", "-----------", "------")

	for _, r := range results {
		lossStr := "-"
		if r.Loss != nil {
			lossStr = fmt.Sprintf("%.6f", *r.Loss)
		}
		fmt.Printf("%-6d| %-12s| %12.4f | %12.4f | %-9v| %-10s| %s\n",
			r.EventIndex, shortID(r.SessionID), r.Significance, r.Threshold, r.Triggered, lossStr, r.Match)
	}

	fmt.Printf("\nSummary: %d events, %d triggered, %d decayed", summary.TotalEvents, summary.Triggered, summary.Decayed)
	if summary.Matches+summary.Diffs > 0 {
		fmt.Printf(", %d match, %d diverge", summary.Matches, summary.Diffs)
	}
	fmt.Println()
	fmt.Printf("Final: update_rate=%.3f avg_loss=%.6f\n",
		summary.FinalReport.UpdateRate, summary.FinalReport.AverageLoss)
}

func printJSON(results []replay.Result, summary replay.Summary) error {
	out := struct {
		Results []replay.Result `json:"results"`
		Summary replay.Summary  `json:"summary"`
	}{results, summary}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
