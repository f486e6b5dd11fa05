package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newClientFor(srv *httptest.Server) *adminClient {
	return &adminClient{
		base:   srv.URL,
		token:  "secret",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestStatusDecodesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/v1/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"state": {"active": true, "ticks_completed": 7},
			"positions": [{"market_id": "m1", "side": "yes", "amount": "3.8", "confidence": 70, "entered_at": "2026-01-02T03:04:05Z"}],
			"total_claimed": "12.5"
		}`))
	}))
	defer srv.Close()

	st, err := newClientFor(srv).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.State.Active {
		t.Error("expected active state")
	}
	if st.State.TicksCompleted != 7 {
		t.Errorf("TicksCompleted = %d, want 7", st.State.TicksCompleted)
	}
	if len(st.Positions) != 1 || st.Positions[0].Amount != "3.8" {
		t.Errorf("positions = %+v", st.Positions)
	}
	if st.TotalClaimed != "12.5" {
		t.Errorf("TotalClaimed = %q", st.TotalClaimed)
	}
}

func TestCommandSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "market data source is required"})
	}))
	defer srv.Close()

	_, err := newClientFor(srv).Command("/api/v1/activate", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "market data source is required" {
		t.Errorf("err = %q", err)
	}
}

func TestCommandSendsJSONBody(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "detail": "scheduled"})
	}))
	defer srv.Close()

	detail, err := newClientFor(srv).Command("/api/v1/schedule", map[string]string{"interval": "1h"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if detail != "scheduled" {
		t.Errorf("detail = %q", detail)
	}
	if captured["interval"] != "1h" {
		t.Errorf("captured body = %v", captured)
	}
}
