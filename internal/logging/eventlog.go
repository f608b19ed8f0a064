package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region entry

// EventEntry is one row of the event_log table: the trigger decision and its
// inputs for a single processed event, kept for audit and replay.
type EventEntry struct {
	EventID      string
	SessionID    string
	EventIndex   int
	Significance float64
	Threshold    float64
	Triggered    bool
	Loss         *float64
	CreatedAt    time.Time
}

// #endregion entry

// #region event-log

const eventLogSchema = `
CREATE TABLE IF NOT EXISTS event_log (
	event_id     TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	event_index  INTEGER NOT NULL,
	significance REAL NOT NULL,
	threshold    REAL NOT NULL,
	triggered    INTEGER NOT NULL,
	loss         REAL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_log_session
ON event_log(session_id, created_at);
`

// EventLog appends trigger decisions to a SQLite table, typically sharing the
// database with the memory bank.
type EventLog struct {
	db *sql.DB
}

// NewEventLog runs the event_log migration on the given database.
func NewEventLog(db *sql.DB) (*EventLog, error) {
	if _, err := db.Exec(eventLogSchema); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	return &EventLog{db: db}, nil
}

// Log writes one entry, assigning the event ID and timestamp when unset.
func (l *EventLog) Log(entry EventEntry) error {
	if entry.EventID == "" {
		entry.EventID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var loss interface{}
	if entry.Loss != nil {
		loss = *entry.Loss
	}

	_, err := l.db.Exec(
		`INSERT INTO event_log (event_id, session_id, event_index, significance, threshold, triggered, loss, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID,
		entry.SessionID,
		entry.EventIndex,
		entry.Significance,
		entry.Threshold,
		boolToInt(entry.Triggered),
		loss,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Recent returns the latest entries for a session, newest first.
func (l *EventLog) Recent(sessionID string, limit int) ([]EventEntry, error) {
	rows, err := l.db.Query(
		`SELECT event_id, session_id, event_index, significance, threshold, triggered, loss, created_at
		 FROM event_log WHERE session_id = ?
		 ORDER BY created_at DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var entries []EventEntry
	for rows.Next() {
		var e EventEntry
		var triggered int
		var loss sql.NullFloat64
		var createdStr string
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.EventIndex,
			&e.Significance, &e.Threshold, &triggered, &loss, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Triggered = triggered != 0
		if loss.Valid {
			v := loss.Float64
			e.Loss = &v
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion event-log
