package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestEventsRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	if err := j.AddEvent(&Event{Type: EventRequestIssued, RequestID: "req-1", MarketID: "mkt-1"}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := j.AddEvent(&Event{Type: EventTickCompleted, Reason: "no_action"}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	events, err := j.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != EventTickCompleted || events[1].RequestID != "req-1" {
		t.Errorf("unexpected ordering: %+v", events)
	}

	n, err := j.CountEvents(EventRequestIssued)
	if err != nil || n != 1 {
		t.Errorf("CountEvents = %d, %v; want 1, nil", n, err)
	}
}

func TestRequestLifecycle(t *testing.T) {
	j := openTestJournal(t)

	if err := j.RecordRequest("req-1", "mkt-1"); err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}
	if err := j.RecordRequest("req-1", "mkt-1"); err == nil {
		t.Error("duplicate request_id should violate the unique constraint")
	}

	pending, err := j.PendingRequests()
	if err != nil || pending != 1 {
		t.Fatalf("PendingRequests = %d, %v; want 1, nil", pending, err)
	}

	if err := j.MarkRequestResolved("req-1"); err != nil {
		t.Fatalf("MarkRequestResolved: %v", err)
	}
	pending, _ = j.PendingRequests()
	if pending != 0 {
		t.Errorf("PendingRequests after resolve = %d, want 0", pending)
	}

	// Resolving again is a harmless no-op at the storage layer.
	if err := j.MarkRequestResolved("req-1"); err != nil {
		t.Errorf("second MarkRequestResolved: %v", err)
	}
}

func TestPositionsRehydration(t *testing.T) {
	j := openTestJournal(t)

	if err := j.RecordPosition(&PositionRow{MarketID: "mkt-1", Side: "yes", Amount: "3.80", Confidence: 70}); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}
	if err := j.RecordPosition(&PositionRow{MarketID: "mkt-2", Side: "no", Amount: "1", Confidence: 55}); err != nil {
		t.Fatalf("RecordPosition: %v", err)
	}
	if err := j.ClosePosition("mkt-2"); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	open, err := j.OpenPositions()
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(open) != 1 || open[0].MarketID != "mkt-1" || open[0].Amount != "3.80" {
		t.Errorf("unexpected open positions: %+v", open)
	}
}

func TestScheduleRunUpsert(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now()

	if err := j.UpsertScheduleRun("h-1", "dispatched", now); err != nil {
		t.Fatalf("UpsertScheduleRun: %v", err)
	}
	if err := j.UpsertScheduleRun("h-1", "skipped_concurrency", now.Add(time.Minute)); err != nil {
		t.Fatalf("UpsertScheduleRun update: %v", err)
	}

	var status string
	var runs int
	err := j.db.QueryRow(`SELECT last_status, run_count FROM schedule_runs WHERE handle = 'h-1'`).Scan(&status, &runs)
	if err != nil {
		t.Fatalf("query schedule_runs: %v", err)
	}
	if status != "skipped_concurrency" || runs != 2 {
		t.Errorf("got status=%s runs=%d, want skipped_concurrency/2", status, runs)
	}
}

func TestSettings(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.GetSetting("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for missing key, got %v", err)
	}
	if err := j.SetSetting("schedule_handle", "h-1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := j.SetSetting("schedule_handle", "h-2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := j.GetSetting("schedule_handle")
	if err != nil || v != "h-2" {
		t.Errorf("GetSetting = %q, %v; want h-2, nil", v, err)
	}
}
