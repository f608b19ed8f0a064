package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/bank"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/logging"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the memory database")
	session := flag.String("session", "", "show one session in detail")
	last := flag.Int("last", 20, "show N most recent snapshots and events")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/adaptive_memory.db [--session id] [--last N] [--json]")
		os.Exit(2)
	}

	store, err := bank.NewSQLiteBank(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *session != "" {
		err = runSessionMode(store, *session, *last, *jsonOut)
	} else {
		err = runListMode(store, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type sessionRow struct {
	SessionID  string  `json:"session_id"`
	HiddenNorm float64 `json:"hidden_norm"`
	CellNorm   float64 `json:"cell_norm"`
	Snapshots  int     `json:"snapshots"`
}

func runListMode(store *bank.SQLiteBank, jsonOut bool) error {
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	rows := make([]sessionRow, 0, len(sessions))
	for _, id := range sessions {
		infos, err := store.ListSnapshots(id, 1)
		if err != nil {
			return err
		}
		r := sessionRow{SessionID: id}
		if len(infos) > 0 {
			r.HiddenNorm = infos[0].HiddenNorm
			r.CellNorm = infos[0].CellNorm
		}
		all, err := store.ListSnapshots(id, -1)
		if err != nil {
			return err
		}
		r.Snapshots = len(all)
		rows = append(rows, r)
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-14s  %12s  %12s  %s\n", "Session", "Hidden Norm", "Cell Norm", "Snapshots")
	fmt.Printf("%-14s+-%12s+-%12s+-%s\n", "--------------", "------------", "------------", "---------")
	for _, r := range rows {
		fmt.Printf("%-14s  %12.4f  %12.4f  %d\n", shortID(r.SessionID), r.HiddenNorm, r.CellNorm, r.Snapshots)
	}
	return nil
}

// #endregion list-mode

// #region session-mode

type sessionDetail struct {
	SessionID string               `json:"session_id"`
	Snapshots []bank.SnapshotInfo  `json:"snapshots"`
	Events    []logging.EventEntry `json:"events"`
}

func runSessionMode(store *bank.SQLiteBank, sessionID string, last int, jsonOut bool) error {
	snapshots, err := store.ListSnapshots(sessionID, last)
	if err != nil {
		return err
	}

	eventLog, err := logging.NewEventLog(store.DB())
	if err != nil {
		return err
	}
	events, err := eventLog.Recent(sessionID, last)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(sessionDetail{SessionID: sessionID, Snapshots: snapshots, Events: events})
	}

	fmt.Printf("Session: %s\n\n", sessionID)

	fmt.Printf("Snapshots (newest first):\n")
	fmt.Printf("  %-10s  %12s  %12s  %s\n", "ID", "Hidden Norm", "Cell Norm", "Created")
	for _, s := range snapshots {
		fmt.Printf("  %-10s  %12.4f  %12.4f  %s\n",
			shortID(s.SnapshotID), s.HiddenNorm, s.CellNorm, s.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	fmt.Printf("\nEvents (newest first):\n")
	fmt.Printf("  %-7s  %12s  %12s  %-9s  %s\n", "Index", "Significance", "Threshold", "Triggered", "Loss")
	for _, e := range events {
		lossStr := "-"
		if e.Loss != nil {
			lossStr = fmt.Sprintf("%.6f", *e.Loss)
		}
		fmt.Printf("  %-7d  %12.4f  %12.4f  %-9v  %s\n",
			e.EventIndex, e.Significance, e.Threshold, e.Triggered, lossStr)
	}
	return nil
}

// #endregion session-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
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
