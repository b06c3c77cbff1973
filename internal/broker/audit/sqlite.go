package audit

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteSink persists every audit event to an audit_events table so operators
// can query the trail after the process exits. It complements, rather than
// replaces, the stdout line sink.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// audit_events table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit db open: %w", err)
	}

	// SQLite is single-writer by design. Keep a single shared connection so
	// concurrent callers are serialized by database/sql instead of fighting
	// for write locks across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS audit_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	occurred_at  TEXT NOT NULL,
	request_id   TEXT NOT NULL,
	trace_id     TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	body_json    TEXT NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit db migrate: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write appends one row per event. The full canonical encoding lands in
// body_json; the indexed columns exist for querying by trace or request.
func (s *SQLiteSink) Write(evt Event) error {
	body, err := canonicalJSON(evt)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
INSERT INTO audit_events (event_id, event_type, occurred_at, request_id, trace_id, requester_id, body_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, evt.EventID, evt.EventType, evt.OccurredAt, evt.RequestID, evt.TraceID, evt.RequesterID, string(body))
	if err != nil {
		return fmt.Errorf("audit db insert: %w", err)
	}
	return nil
}

// ByTrace returns the stored events for a trace ID in emission order.
func (s *SQLiteSink) ByTrace(traceID string) ([]string, error) {
	rows, err := s.db.Query(`
SELECT body_json FROM audit_events WHERE trace_id = ? ORDER BY id ASC
`, traceID)
	if err != nil {
		return nil, fmt.Errorf("audit db query: %w", err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("audit db scan: %w", err)
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
