package callback

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/OddsClaw/OddsClaw/internal/bus"
)

// answerEnvelope is the wire format of one delivered answer.
type answerEnvelope struct {
	RequestID string         `json:"request_id"`
	Fields    map[string]any `json:"fields"`
	Error     string         `json:"error,omitempty"`
}

// Feed pumps delivered answers from a Consumer onto the bus. Malformed
// deliveries are dropped with a log line; the registry downstream rejects
// unknown and duplicate request IDs, so the feed itself stays stateless.
type Feed struct {
	consumer Consumer
	bus      *bus.Bus
}

// NewFeed wires a consumer to the bus.
func NewFeed(c Consumer, b *bus.Bus) *Feed {
	return &Feed{consumer: c, bus: b}
}

// Run consumes deliveries until the context ends.
func (f *Feed) Run(ctx context.Context) error {
	if err := f.consumer.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-f.consumer.Messages():
			if !ok {
				return nil
			}
			f.deliver(msg)
		}
	}
}

func (f *Feed) deliver(msg ConsumerMessage) {
	var env answerEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		slog.Warn("Dropping malformed answer delivery", "error", err)
		return
	}
	if env.RequestID == "" {
		slog.Warn("Dropping answer delivery without request ID")
		return
	}

	if env.Error != "" {
		f.bus.Publish(&bus.Signal{
			Kind:      bus.KindFailure,
			Source:    bus.SourceCallback,
			RequestID: env.RequestID,
			Reason:    env.Error,
		})
		return
	}

	f.bus.Publish(&bus.Signal{
		Kind:      bus.KindAnswer,
		Source:    bus.SourceCallback,
		RequestID: env.RequestID,
		Fields:    env.Fields,
	})
}
