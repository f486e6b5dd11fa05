// Package journal persists the agent's observable signals: every request,
// answer, tick outcome, position and claim is recorded so agent history can
// be reconstructed from the database alone.
package journal

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event types journaled by the agent.
const (
	EventRequestIssued   = "request_issued"
	EventRequestFailed   = "request_failed"
	EventAnswerReceived  = "answer_received"
	EventAnswerDiscarded = "answer_discarded"
	EventTickCompleted   = "tick_completed"
	EventConfigChanged   = "config_changed"
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventClaimAttempted  = "claim_attempted"
	EventClaimSucceeded  = "claim_succeeded"
	EventClaimFailed     = "claim_failed"
	EventEmergencyStop   = "emergency_stop"
	EventFundsMoved      = "funds_moved"
)

// Event is one observable signal row.
type Event struct {
	EventID   string
	Type      string
	RequestID string
	MarketID  string
	Amount    string
	Reason    string
	Detail    string
	CreatedAt time.Time
}

// PositionRow mirrors a persisted position for rehydration on startup.
type PositionRow struct {
	MarketID   string
	Side       string
	Amount     string
	Confidence int
	Rationale  string
	EnteredAt  time.Time
}

// Journal wraps the sqlite database.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	// Best-effort migrations for databases created before these columns
	// existed (no-ops on current schema).
	_, _ = db.Exec(`ALTER TABLE events ADD COLUMN detail TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE positions ADD COLUMN rationale TEXT DEFAULT ''`)
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func newEventID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// AddEvent appends one signal row. A zero EventID is assigned automatically.
func (j *Journal) AddEvent(ev *Event) error {
	if ev.EventID == "" {
		ev.EventID = newEventID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO events (event_id, event_type, request_id, market_id, amount, reason, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.Type, ev.RequestID, ev.MarketID, ev.Amount, ev.Reason, ev.Detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events, newest first.
func (j *Journal) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(`
		SELECT event_id, event_type, request_id, market_id, amount, reason, detail, created_at
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.EventID, &ev.Type, &ev.RequestID, &ev.MarketID, &ev.Amount, &ev.Reason, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents returns the number of events of the given type.
func (j *Journal) CountEvents(eventType string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}

// RecordRequest persists a new request record.
func (j *Journal) RecordRequest(requestID, marketID string) error {
	_, err := j.db.Exec(`INSERT INTO requests (request_id, market_id) VALUES (?, ?)`, requestID, marketID)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// MarkRequestResolved flips a request record to resolved.
func (j *Journal) MarkRequestResolved(requestID string) error {
	_, err := j.db.Exec(`
		UPDATE requests SET resolved = 1, resolved_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND resolved = 0`, requestID)
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	return nil
}

// PendingRequests counts request records that never resolved.
func (j *Journal) PendingRequests() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM requests WHERE resolved = 0`).Scan(&n)
	return n, err
}

// RecordPosition persists an opened position.
func (j *Journal) RecordPosition(p *PositionRow) error {
	if p.EnteredAt.IsZero() {
		p.EnteredAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO positions (market_id, active, side, amount, confidence, rationale, entered_at)
		VALUES (?, 1, ?, ?, ?, ?, ?)`,
		p.MarketID, p.Side, p.Amount, p.Confidence, p.Rationale, p.EnteredAt)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// ClosePosition marks the active position on a market as closed.
func (j *Journal) ClosePosition(marketID string) error {
	_, err := j.db.Exec(`
		UPDATE positions SET active = 0, closed_at = CURRENT_TIMESTAMP
		WHERE market_id = ? AND active = 1`, marketID)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	return nil
}

// OpenPositions returns all positions still marked active, oldest first.
func (j *Journal) OpenPositions() ([]PositionRow, error) {
	rows, err := j.db.Query(`
		SELECT market_id, side, amount, confidence, rationale, entered_at
		FROM positions WHERE active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.MarketID, &p.Side, &p.Amount, &p.Confidence, &p.Rationale, &p.EnteredAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertScheduleRun records the latest status of a schedule (best-effort
// bookkeeping for the admin surface).
func (j *Journal) UpsertScheduleRun(handle, status string, tick time.Time) error {
	_, err := j.db.Exec(`
		INSERT INTO schedule_runs (handle, last_status, last_run_at, run_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(handle) DO UPDATE SET
			last_status = excluded.last_status,
			last_run_at = excluded.last_run_at,
			run_count = run_count + 1,
			updated_at = CURRENT_TIMESTAMP`,
		handle, status, tick.UTC())
	return err
}

// SetSetting stores a key/value pair.
func (j *Journal) SetSetting(key, value string) error {
	_, err := j.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	return err
}

// GetSetting returns the stored value, or sql.ErrNoRows if absent.
func (j *Journal) GetSetting(key string) (string, error) {
	var v string
	err := j.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	return v, err
}
