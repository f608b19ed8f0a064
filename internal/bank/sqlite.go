package bank

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS memory_snapshots (
	snapshot_id  TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	hidden       BLOB NOT NULL,
	cell         BLOB NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_snapshots_session
ON memory_snapshots(session_id, created_at);

CREATE TABLE IF NOT EXISTS active_memory (
	session_id   TEXT PRIMARY KEY,
	snapshot_id  TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES memory_snapshots(snapshot_id)
);
`

// #endregion schema

// #region store-struct

// SQLiteBank is a durable Bank keeping every committed snapshot per session,
// with an active pointer per session and rollback to any prior snapshot.
type SQLiteBank struct {
	db *sql.DB
}

// NewSQLiteBank opens a SQLite database and runs migrations.
func NewSQLiteBank(dbPath string) (*SQLiteBank, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBank{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBank) Close() error {
	return b.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (b *SQLiteBank) DB() *sql.DB {
	return b.db
}

// #endregion store-struct

// #region bank-interface

// Store inserts a new snapshot and moves the session's active pointer to it
// atomically.
func (b *SQLiteBank) Store(sessionID string, hidden, cell []float64) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO memory_snapshots (snapshot_id, session_id, hidden, cell, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, encodeVector(hidden), encodeVector(cell), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_memory (session_id, snapshot_id) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

// Retrieve reads the active snapshot for a session.
func (b *SQLiteBank) Retrieve(sessionID string) ([]float64, []float64, bool, error) {
	var hiddenBlob, cellBlob []byte
	err := b.db.QueryRow(
		`SELECT s.hidden, s.cell
		 FROM active_memory a JOIN memory_snapshots s ON s.snapshot_id = a.snapshot_id
		 WHERE a.session_id = ?`, sessionID,
	).Scan(&hiddenBlob, &cellBlob)
	if err == sql.ErrNoRows {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("retrieve %s: %w", sessionID, err)
	}
	return decodeVector(hiddenBlob), decodeVector(cellBlob), true, nil
}

// Delete removes a session's active pointer and all its snapshots.
func (b *SQLiteBank) Delete(sessionID string) (bool, error) {
	tx, err := b.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM active_memory WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete active: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM memory_snapshots WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListSessions returns all session IDs with an active snapshot.
func (b *SQLiteBank) ListSessions() ([]string, error) {
	rows, err := b.db.Query(`SELECT session_id FROM active_memory ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear removes all sessions and snapshots.
func (b *SQLiteBank) Clear() error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM active_memory`); err != nil {
		return fmt.Errorf("clear active: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM memory_snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return tx.Commit()
}

// #endregion bank-interface

// #region snapshots

// SnapshotInfo describes one stored snapshot without its vectors.
type SnapshotInfo struct {
	SnapshotID string
	SessionID  string
	HiddenNorm float64
	CellNorm   float64
	CreatedAt  time.Time
}

// ListSnapshots returns the most recent snapshots for a session, newest
// first.
func (b *SQLiteBank) ListSnapshots(sessionID string, limit int) ([]SnapshotInfo, error) {
	rows, err := b.db.Query(
		`SELECT snapshot_id, session_id, hidden, cell, created_at
		 FROM memory_snapshots WHERE session_id = ?
		 ORDER BY created_at DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var hiddenBlob, cellBlob []byte
		var createdStr string
		if err := rows.Scan(&info.SnapshotID, &info.SessionID, &hiddenBlob, &cellBlob, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		info.HiddenNorm = vectorNorm(decodeVector(hiddenBlob))
		info.CellNorm = vectorNorm(decodeVector(cellBlob))
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Rollback moves a session's active pointer to a previous snapshot.
func (b *SQLiteBank) Rollback(sessionID, snapshotID string) error {
	var exists int
	err := b.db.QueryRow(
		`SELECT COUNT(*) FROM memory_snapshots WHERE snapshot_id = ? AND session_id = ?`,
		snapshotID, sessionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("snapshot %s not found for session %s", snapshotID, sessionID)
	}

	_, err = b.db.Exec(
		`UPDATE active_memory SET snapshot_id = ? WHERE session_id = ?`,
		snapshotID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion snapshots

// #region vector-encoding

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// #endregion vector-encoding
