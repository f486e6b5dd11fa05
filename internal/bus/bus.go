// Package bus provides the async signal bus between the agent loop and its
// collaborators (scheduler ticks, inference answers, admin control).
package bus

import (
	"context"
	"sync"
	"time"
)

// Signal kinds consumed by the agent loop.
const (
	KindTick    = "tick"
	KindAnswer  = "answer"
	KindFailure = "failure"
	KindControl = "control"
)

// Well-known signal sources.
const (
	SourceScheduler = "scheduler"
	SourceInference = "inference"
	SourceCallback  = "callback"
	SourceAdmin     = "admin"
)

// Signal is one inbound unit of work for the agent loop. The kind-specific
// payload fields are populated according to Kind.
type Signal struct {
	Kind      string         `json:"kind"`
	Source    string         `json:"source"`
	Handle    string         `json:"handle,omitempty"`     // schedule handle for ticks
	RequestID string         `json:"request_id,omitempty"` // correlation key for answers/failures
	Fields    map[string]any `json:"fields,omitempty"`     // structured answer payload
	Reason    string         `json:"reason,omitempty"`     // failure reason
	Control   *Control       `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
}

// Control is an owner-originated command routed through the bus so that
// administrative mutations are serialized with ticks and answers.
type Control struct {
	Command string
	Payload []byte
	// Reply receives exactly one result. The sender owns the channel and
	// must buffer it so the loop never blocks on delivery.
	Reply chan ControlResult
}

// ControlResult reports the outcome of a control command.
type ControlResult struct {
	Err    error
	Detail string
}

// Notification is an outbound observable signal (position opened, claim
// settled, lifecycle change) fanned out to subscribers such as notifiers.
type Notification struct {
	Topic     string
	SubjectID string
	RequestID string
	Amount    string
	Text      string
}

// Notification topics.
const (
	TopicPosition  = "position"
	TopicClaim     = "claim"
	TopicLifecycle = "lifecycle"
	TopicFailure   = "failure"
)

// Bus decouples signal producers from the agent loop.
type Bus struct {
	signals       chan *Signal
	notifications chan *Notification
	subs          map[string][]func(*Notification)
	mu            sync.RWMutex
}

// New creates a Bus with bounded queues.
func New() *Bus {
	return &Bus{
		signals:       make(chan *Signal, 100),
		notifications: make(chan *Notification, 100),
		subs:          make(map[string][]func(*Notification)),
	}
}

// Publish enqueues a signal for the agent loop.
func (b *Bus) Publish(sig *Signal) {
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	b.signals <- sig
}

// Consume blocks until a signal is available or the context is cancelled.
func (b *Bus) Consume(ctx context.Context) (*Signal, error) {
	select {
	case sig := <-b.signals:
		return sig, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify enqueues an outbound notification.
func (b *Bus) Notify(n *Notification) {
	select {
	case b.notifications <- n:
	default:
		// Notifications are advisory; drop rather than stall the loop.
	}
}

// Subscribe registers a callback for notifications on a topic.
func (b *Bus) Subscribe(topic string, callback func(*Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], callback)
}

// DispatchNotifications fans notifications out to subscribers. Run as a
// goroutine alongside the agent loop.
func (b *Bus) DispatchNotifications(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-b.notifications:
			b.mu.RLock()
			callbacks := b.subs[n.Topic]
			b.mu.RUnlock()
			for _, cb := range callbacks {
				cb(n)
			}
		}
	}
}

// Pending returns the number of queued signals.
func (b *Bus) Pending() int {
	return len(b.signals)
}
