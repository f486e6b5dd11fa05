// Package admin exposes the owner-gated administrative surface over HTTP:
// lifecycle, scheduling, policy, funds, and status. Every mutation is
// translated into a control signal so it executes on the agent loop's own
// goroutine.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/OddsClaw/OddsClaw/internal/agent"
	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/journal"
	"github.com/OddsClaw/OddsClaw/internal/positions"
)

const controlTimeout = 10 * time.Second

// Server is the administrative HTTP server.
type Server struct {
	addr  string
	token string
	loop  *agent.Loop
	bus   *bus.Bus
	book  *positions.View
	jrnl  *journal.Journal
}

// New creates the admin server. token must be non-empty; the server refuses
// to start without owner authentication.
func New(addr, token string, loop *agent.Loop, b *bus.Bus, book *positions.View, j *journal.Journal) *Server {
	return &Server{
		addr:  addr,
		token: token,
		loop:  loop,
		bus:   b,
		book:  book,
		jrnl:  j,
	}
}

// ListenAndServe runs the server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.token == "" {
		return errors.New("admin: owner token is required")
	}
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Admin server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/activate", s.command(agent.CmdActivate, false))
	mux.HandleFunc("/api/v1/deactivate", s.command(agent.CmdDeactivate, false))
	mux.HandleFunc("/api/v1/emergency-stop", s.command(agent.CmdEmergencyStop, false))
	mux.HandleFunc("/api/v1/policy", s.command(agent.CmdPolicy, true))
	mux.HandleFunc("/api/v1/schedule", s.command(agent.CmdSchedule, true))
	mux.HandleFunc("/api/v1/run-once", s.command(agent.CmdRunOnce, false))
	mux.HandleFunc("/api/v1/deposit", s.command(agent.CmdDeposit, true))
	mux.HandleFunc("/api/v1/withdraw", s.command(agent.CmdWithdraw, true))
	return mux
}

// authorized checks the Bearer token against the owner token.
func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return s.token != "" && token == s.token
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	type positionOut struct {
		MarketID   string `json:"market_id"`
		Side       string `json:"side"`
		Amount     string `json:"amount"`
		Confidence int    `json:"confidence"`
		EnteredAt  string `json:"entered_at"`
	}
	out := struct {
		State        agent.State   `json:"state"`
		Positions    []positionOut `json:"positions"`
		TotalClaimed string        `json:"total_claimed"`
	}{
		State:        s.loop.Snapshot(),
		TotalClaimed: s.book.TotalClaimed().String(),
	}
	for _, p := range s.book.Snapshot() {
		out.Positions = append(out.Positions, positionOut{
			MarketID:   p.MarketID,
			Side:       p.Side.String(),
			Amount:     p.Amount.String(),
			Confidence: p.Confidence,
			EnteredAt:  p.EnteredAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.jrnl == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []journal.Event{}})
		return
	}
	events, err := s.jrnl.RecentEvents(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// command returns a handler that forwards one control command to the loop
// and waits for its reply.
func (s *Server) command(cmd string, wantsBody bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}

		var payload []byte
		if wantsBody {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
			if err != nil {
				writeError(w, http.StatusBadRequest, "read body: "+err.Error())
				return
			}
			payload = body
		}

		reply := make(chan bus.ControlResult, 1)
		s.bus.Publish(&bus.Signal{
			Kind:   bus.KindControl,
			Source: bus.SourceAdmin,
			Control: &bus.Control{
				Command: cmd,
				Payload: payload,
				Reply:   reply,
			},
		})

		select {
		case result := <-reply:
			if result.Err != nil {
				writeError(w, http.StatusUnprocessableEntity, result.Err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "detail": result.Detail})
		case <-time.After(controlTimeout):
			writeError(w, http.StatusGatewayTimeout, "agent loop did not reply")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
