package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OddsClaw/OddsClaw/internal/agent"
	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/inference"
	"github.com/OddsClaw/OddsClaw/internal/market"
	"github.com/OddsClaw/OddsClaw/internal/positions"
	"github.com/OddsClaw/OddsClaw/internal/registry"
)

type stubStrategy struct {
	validateErr error
}

func (s *stubStrategy) Validate() error                             { return s.validateErr }
func (s *stubStrategy) PrepareTick(_ context.Context) (string, error) { return "", nil }
func (s *stubStrategy) FrameRequest(_ context.Context, id string) (*inference.CompletionRequest, error) {
	return &inference.CompletionRequest{Prompt: id}, nil
}
func (s *stubStrategy) HandleAnswer(_ context.Context, _, _ string, _ map[string]any) error {
	return nil
}

type stubProvider struct{}

func (stubProvider) Complete(_ context.Context, _ *inference.CompletionRequest) (*inference.CompletionResponse, error) {
	return &inference.CompletionResponse{Content: "{}"}, nil
}
func (stubProvider) DefaultModel() string { return "stub" }

func newTestServer(t *testing.T, strategy agent.Strategy) (*Server, *positions.View) {
	t.Helper()
	b := bus.New()
	book := positions.New(0, nil)
	loop := agent.NewLoop(agent.LoopOptions{
		Bus:      b,
		Strategy: strategy,
		Gateway:  inference.NewGateway(stubProvider{}, b, time.Second),
		Registry: registry.New(nil),
		Owner:    "owner-1",
	})
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	return New("127.0.0.1:0", "secret-token", loop, b, book, nil), book
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, &stubStrategy{})
	for _, path := range []string{"/api/v1/status", "/api/v1/activate", "/api/v1/policy"} {
		rec := doRequest(t, s, http.MethodPost, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/status", "wrong-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: expected 401, got %d", rec.Code)
	}
}

func TestActivateDeactivate(t *testing.T) {
	s, _ := newTestServer(t, &stubStrategy{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/activate", "secret-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/status", "secret-token", "")
	var status struct {
		State agent.State `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("parse status: %v", err)
	}
	if !status.State.Active {
		t.Error("expected active=true after activation")
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/deactivate", "secret-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", rec.Code)
	}
}

func TestActivationFailureReturnsError(t *testing.T) {
	s, _ := newTestServer(t, &stubStrategy{validateErr: errors.New("max bet size out of bounds")})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/activate", "secret-token", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "max bet size") {
		t.Errorf("error detail missing: %s", rec.Body)
	}
}

func TestStatusReportsPositions(t *testing.T) {
	s, book := newTestServer(t, &stubStrategy{})
	book.Open(&positions.Position{
		MarketID:   "m-1",
		Side:       market.SideYes,
		Amount:     decimal.RequireFromString("3.8"),
		Confidence: 70,
	})
	book.RecordClaim(decimal.NewFromInt(2))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/status", "secret-token", "")
	var out struct {
		Positions []struct {
			MarketID string `json:"market_id"`
			Side     string `json:"side"`
			Amount   string `json:"amount"`
		} `json:"positions"`
		TotalClaimed string `json:"total_claimed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse status: %v", err)
	}
	if len(out.Positions) != 1 || out.Positions[0].MarketID != "m-1" || out.Positions[0].Side != "yes" {
		t.Errorf("unexpected positions: %+v", out.Positions)
	}
	if out.Positions[0].Amount != "3.8" {
		t.Errorf("expected amount 3.8, got %s", out.Positions[0].Amount)
	}
	if out.TotalClaimed != "2" {
		t.Errorf("expected total claimed 2, got %s", out.TotalClaimed)
	}
}

func TestScheduleRequiresPost(t *testing.T) {
	s, _ := newTestServer(t, &stubStrategy{})
	rec := doRequest(t, s, http.MethodGet, "/api/v1/schedule", "secret-token", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestPolicyForwardsValidationError(t *testing.T) {
	s, _ := newTestServer(t, &stubStrategy{})
	// stubStrategy does not implement PolicyUpdater, so the loop refuses.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/policy", "secret-token", `{"max_bet_size":"5"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body)
	}
}
