package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OddsClaw/OddsClaw/internal/bus"
)

// ErrDeferred is returned by providers that accept a request but deliver the
// answer out-of-process (see internal/callback). The gateway keeps the
// request in flight until the answer signal arrives.
var ErrDeferred = errors.New("inference: answer deferred to callback delivery")

// Failure is the non-throwing result of a rejected or errored request.
// Callers pattern-match on it instead of unwinding the tick.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

// Stats is a snapshot of gateway counters.
type Stats struct {
	RequestsSent      uint64
	ResponsesReceived uint64
	InFlight          bool
	InFlightID        string
}

// Gateway issues inference requests and delivers their answers to the bus as
// separate, later signals keyed by request ID. It enforces at most one
// outstanding request at a time.
type Gateway struct {
	provider Provider
	bus      *bus.Bus
	timeout  time.Duration

	mu                sync.Mutex
	inFlight          bool
	inFlightID        string
	requestsSent      uint64
	responsesReceived uint64
}

// NewGateway creates a Gateway around the given provider.
func NewGateway(p Provider, b *bus.Bus, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gateway{provider: p, bus: b, timeout: timeout}
}

// Request issues one inference request. On acceptance it returns the opaque
// request ID; the structured answer (or a failure) arrives later on the bus.
// All rejections are returned as Failure values, never propagated as fatal
// errors, so a tick simply records "no request this round".
func (g *Gateway) Request(_ context.Context, req *CompletionRequest) (string, *Failure) {
	if g.provider == nil {
		return "", &Failure{Reason: "no provider configured"}
	}
	if req.Schema != nil {
		if err := req.Schema.Validate(); err != nil {
			return "", &Failure{Reason: "invalid output schema", Err: err}
		}
	}

	g.mu.Lock()
	if g.inFlight {
		id := g.inFlightID
		g.mu.Unlock()
		return "", &Failure{Reason: fmt.Sprintf("request %s still in flight", id)}
	}
	requestID := uuid.NewString()
	g.inFlight = true
	g.inFlightID = requestID
	g.requestsSent++
	g.mu.Unlock()

	// The issuing invocation ends here; the answer is delivered by a
	// separate later signal. The call runs against its own deadline, not
	// the tick's context.
	go g.dispatch(requestID, req)

	slog.Info("Inference request issued", "requestID", requestID, "model", req.Model)
	return requestID, nil
}

func (g *Gateway) dispatch(requestID string, req *CompletionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(ctx, req)
	if errors.Is(err, ErrDeferred) {
		slog.Info("Inference answer deferred", "requestID", requestID)
		return
	}
	if err != nil {
		g.fail(requestID, "provider call failed", err)
		return
	}

	fields, err := decodeAnswer(resp.Content)
	if err != nil {
		g.fail(requestID, "malformed answer payload", err)
		return
	}

	g.mu.Lock()
	if g.inFlightID == requestID {
		g.inFlight = false
		g.inFlightID = ""
		g.responsesReceived++
	}
	g.mu.Unlock()

	g.bus.Publish(&bus.Signal{
		Kind:      bus.KindAnswer,
		Source:    bus.SourceInference,
		RequestID: requestID,
		Fields:    fields,
	})
}

// fail clears the in-flight flag defensively and reports the failure as a
// signal so the loop's control flow continues.
func (g *Gateway) fail(requestID, reason string, err error) {
	g.mu.Lock()
	if g.inFlightID == requestID {
		g.inFlight = false
		g.inFlightID = ""
	}
	g.mu.Unlock()

	slog.Warn("Inference request failed", "requestID", requestID, "reason", reason, "error", err)
	g.bus.Publish(&bus.Signal{
		Kind:      bus.KindFailure,
		Source:    bus.SourceInference,
		RequestID: requestID,
		Reason:    fmt.Sprintf("%s: %v", reason, err),
	})
}

// Acknowledge clears the in-flight flag for an answer that arrived through
// an external delivery route (callback feed). A stale or repeated request ID
// is a no-op.
func (g *Gateway) Acknowledge(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlightID == requestID {
		g.inFlight = false
		g.inFlightID = ""
		g.responsesReceived++
	}
}

// Release clears the in-flight flag for a request whose failure was
// reported externally (callback feed). Unlike Acknowledge it does not count
// a response; the request simply never completed. A stale or repeated
// request ID is a no-op.
func (g *Gateway) Release(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlightID == requestID {
		g.inFlight = false
		g.inFlightID = ""
	}
}

// InFlight reports whether a request is outstanding.
func (g *Gateway) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Stats returns a snapshot of the gateway counters.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		RequestsSent:      g.requestsSent,
		ResponsesReceived: g.responsesReceived,
		InFlight:          g.inFlight,
		InFlightID:        g.inFlightID,
	}
}

// decodeAnswer parses the structured answer content into its top-level
// fields, tolerating code fences around the JSON object.
func decodeAnswer(content string) (map[string]any, error) {
	clean := strings.TrimSpace(content)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(clean, "```")
		clean = strings.TrimSpace(clean)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
