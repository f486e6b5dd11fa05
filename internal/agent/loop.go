package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/inference"
	"github.com/OddsClaw/OddsClaw/internal/journal"
	"github.com/OddsClaw/OddsClaw/internal/registry"
	"github.com/OddsClaw/OddsClaw/internal/scheduler"
)

// FundsManager is implemented by strategies that can move funds.
type FundsManager interface {
	Deposit(ctx context.Context, amount decimal.Decimal) error
	Withdraw(ctx context.Context, amount decimal.Decimal) error
}

// PolicyUpdater is implemented by strategies with a mutable policy.
type PolicyUpdater interface {
	UpdatePolicy(raw []byte) error
}

// LoopOptions contains configuration for the agent loop.
type LoopOptions struct {
	Bus       *bus.Bus
	Strategy  Strategy
	Gateway   *inference.Gateway
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Journal   *journal.Journal
	Owner     string
}

// Loop is the core agent processing engine. All state mutation happens on
// the single goroutine consuming the bus; admin mutations arrive as control
// signals and are serialized the same way.
type Loop struct {
	bus       *bus.Bus
	strategy  Strategy
	gateway   *inference.Gateway
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	jrnl      *journal.Journal
	running   atomic.Bool

	mu    sync.RWMutex
	state State
}

// NewLoop creates a new agent loop. The agent starts inactive; activation
// is an explicit owner action.
func NewLoop(opts LoopOptions) *Loop {
	return &Loop{
		bus:       opts.Bus,
		strategy:  opts.Strategy,
		gateway:   opts.Gateway,
		registry:  opts.Registry,
		scheduler: opts.Scheduler,
		jrnl:      opts.Journal,
		state:     State{Owner: opts.Owner},
	}
}

// Run starts the agent loop, processing signals from the bus.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	slog.Info("Agent loop started", "owner", l.state.Owner)

	for l.running.Load() {
		sig, err := l.bus.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // Context cancelled, normal shutdown
			}
			slog.Error("Failed to consume signal", "error", err)
			continue
		}

		switch sig.Kind {
		case bus.KindTick:
			l.handleTick(ctx, sig)
		case bus.KindAnswer:
			l.handleAnswer(ctx, sig)
		case bus.KindFailure:
			l.handleFailure(sig)
		case bus.KindControl:
			l.handleControl(ctx, sig)
		default:
			slog.Warn("Unknown signal kind", "kind", sig.Kind)
		}
	}
	return nil
}

// Stop ends the loop after the current signal.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// Snapshot returns the current agent state for the status surface.
func (l *Loop) Snapshot() State {
	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	stats := l.gateway.Stats()
	state.RequestsSent = stats.RequestsSent
	state.ResponsesReceived = stats.ResponsesReceived
	state.RequestInFlight = stats.InFlight
	return state
}

// handleTick runs one round of agent logic. Only self-originated ticks are
// honored: a scheduler tick must carry the handle the agent registered, so
// a stray or stale schedule cannot drive the agent.
func (l *Loop) handleTick(ctx context.Context, sig *bus.Signal) {
	l.mu.RLock()
	active := l.state.Active
	handle := l.state.ScheduleHandle
	l.mu.RUnlock()

	if sig.Source == bus.SourceScheduler && sig.Handle != handle {
		slog.Warn("Ignoring tick from unregistered schedule", "handle", sig.Handle)
		return
	}
	if !active {
		slog.Debug("Tick while inactive, skipping")
		return
	}

	l.executeTick(ctx)
}

// executeTick is the agent's execution entry point: claims and subject
// selection via the strategy, then at most one inference request. Every
// outcome ends the tick successfully; failures inside are reported, not
// propagated.
func (l *Loop) executeTick(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.state.TicksCompleted++
		l.mu.Unlock()
	}()

	subjectID, err := l.strategy.PrepareTick(ctx)
	if err != nil {
		slog.Warn("Tick preparation failed", "error", err)
		l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, Reason: err.Error()})
		return
	}
	if subjectID == "" {
		l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, Detail: "no action"})
		return
	}
	if l.gateway.InFlight() {
		l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, MarketID: subjectID, Detail: "request in flight, none issued"})
		return
	}

	req, err := l.strategy.FrameRequest(ctx, subjectID)
	if err != nil {
		slog.Warn("Failed to frame request", "marketID", subjectID, "error", err)
		l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, MarketID: subjectID, Reason: err.Error()})
		return
	}

	requestID, failure := l.gateway.Request(ctx, req)
	if failure != nil {
		slog.Warn("Inference request refused", "marketID", subjectID, "reason", failure.Reason)
		l.journalEvent(&journal.Event{Type: journal.EventRequestFailed, MarketID: subjectID, Reason: failure.Error()})
		l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, MarketID: subjectID, Detail: "no request this round"})
		return
	}

	if err := l.registry.Open(requestID, subjectID); err != nil {
		// Gateway IDs are unique, so this is a bookkeeping bug, not a race.
		slog.Error("Failed to register request", "requestID", requestID, "error", err)
	}
	l.journalEvent(&journal.Event{Type: journal.EventRequestIssued, RequestID: requestID, MarketID: subjectID})
	l.journalEvent(&journal.Event{Type: journal.EventTickCompleted, MarketID: subjectID, Detail: "request issued"})
}

// handleAnswer correlates a delivered answer back to its subject and hands
// it to the strategy. Duplicate and unknown deliveries are discarded with a
// journaled reason.
func (l *Loop) handleAnswer(ctx context.Context, sig *bus.Signal) {
	l.gateway.Acknowledge(sig.RequestID)

	subjectID, err := l.registry.Resolve(sig.RequestID)
	switch {
	case errors.Is(err, registry.ErrUnknownRequest):
		slog.Warn("Answer for unknown request", "requestID", sig.RequestID)
		l.journalEvent(&journal.Event{Type: journal.EventAnswerDiscarded, RequestID: sig.RequestID, Reason: "unknown request"})
		return
	case errors.Is(err, registry.ErrAlreadyProcessed):
		slog.Info("Duplicate answer delivery ignored", "requestID", sig.RequestID)
		l.journalEvent(&journal.Event{Type: journal.EventAnswerDiscarded, RequestID: sig.RequestID, MarketID: subjectID, Reason: "duplicate delivery"})
		return
	}

	l.journalEvent(&journal.Event{Type: journal.EventAnswerReceived, RequestID: sig.RequestID, MarketID: subjectID})

	l.mu.RLock()
	active := l.state.Active
	l.mu.RUnlock()
	if !active {
		l.journalEvent(&journal.Event{Type: journal.EventAnswerDiscarded, RequestID: sig.RequestID, MarketID: subjectID, Reason: "agent inactive"})
		return
	}

	if err := l.strategy.HandleAnswer(ctx, sig.RequestID, subjectID, sig.Fields); err != nil {
		slog.Warn("Answer handling failed", "requestID", sig.RequestID, "error", err)
	}
}

// handleFailure records a failed request, releases the gateway's in-flight
// slot, and resolves the registry entry so the correlation table does not
// grow a permanent pending row. Failures delivered through the callback
// feed reach the gateway only here, so without the release a deferred
// request would block issuance forever.
func (l *Loop) handleFailure(sig *bus.Signal) {
	slog.Warn("Request failed", "requestID", sig.RequestID, "reason", sig.Reason)
	if sig.RequestID != "" {
		l.gateway.Release(sig.RequestID)
		l.registry.Resolve(sig.RequestID)
	}
	l.journalEvent(&journal.Event{Type: journal.EventRequestFailed, RequestID: sig.RequestID, Reason: sig.Reason})
}

// handleControl executes an owner command and replies on the control's
// channel. Authentication happens at the admin boundary; by the time a
// control reaches the bus it is trusted.
func (l *Loop) handleControl(ctx context.Context, sig *bus.Signal) {
	ctl := sig.Control
	if ctl == nil {
		slog.Warn("Control signal without payload")
		return
	}

	var err error
	var detail string
	switch ctl.Command {
	case CmdActivate:
		err = l.activate()
	case CmdDeactivate:
		l.setActive(false)
		detail = "deactivated"
	case CmdEmergencyStop:
		detail = l.emergencyStop()
	case CmdPolicy:
		err = l.updatePolicy(ctl.Payload)
	case CmdSchedule:
		detail, err = l.reschedule(ctl.Payload)
	case CmdRunOnce:
		err = l.runOnce(ctx)
	case CmdDeposit:
		err = l.moveFunds(ctx, ctl.Payload, true)
	case CmdWithdraw:
		err = l.moveFunds(ctx, ctl.Payload, false)
	default:
		err = fmt.Errorf("unknown command %q", ctl.Command)
	}

	if ctl.Reply != nil {
		ctl.Reply <- bus.ControlResult{Err: err, Detail: detail}
	}
}

// activate re-runs strategy validation and refuses the transition when it
// fails, leaving the agent inactive.
func (l *Loop) activate() error {
	if err := l.strategy.Validate(); err != nil {
		slog.Warn("Activation refused", "error", err)
		return fmt.Errorf("configuration invalid: %w", err)
	}
	l.setActive(true)
	l.journalEvent(&journal.Event{Type: journal.EventConfigChanged, Detail: "activated"})
	slog.Info("Agent activated")
	return nil
}

func (l *Loop) setActive(active bool) {
	l.mu.Lock()
	l.state.Active = active
	l.mu.Unlock()
	if !active {
		l.journalEvent(&journal.Event{Type: journal.EventConfigChanged, Detail: "deactivated"})
	}
}

// emergencyStop deactivates the agent and cancels its schedule.
func (l *Loop) emergencyStop() string {
	l.mu.Lock()
	l.state.Active = false
	handle := l.state.ScheduleHandle
	l.state.ScheduleHandle = ""
	l.mu.Unlock()

	if handle != "" && l.scheduler != nil {
		l.scheduler.Cancel(handle)
	}
	l.journalEvent(&journal.Event{Type: journal.EventEmergencyStop})
	l.bus.Notify(&bus.Notification{Topic: bus.TopicLifecycle, Text: "emergency stop"})
	slog.Warn("Emergency stop")
	return "stopped"
}

func (l *Loop) updatePolicy(payload []byte) error {
	updater, ok := l.strategy.(PolicyUpdater)
	if !ok {
		return errors.New("strategy has no mutable policy")
	}
	return updater.UpdatePolicy(payload)
}

// reschedule registers recurring execution with the trigger service.
// Registration failure is surfaced to the caller and leaves the current
// schedule and the active flag unchanged.
func (l *Loop) reschedule(payload []byte) (string, error) {
	var p SchedulePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("parse schedule: %w", err)
	}
	if l.scheduler == nil {
		return "", errors.New("no trigger service configured")
	}

	l.mu.RLock()
	oldHandle := l.state.ScheduleHandle
	l.mu.RUnlock()

	if p.Cancel {
		if oldHandle == "" {
			return "", errors.New("no schedule registered")
		}
		l.scheduler.Cancel(oldHandle)
		l.mu.Lock()
		l.state.ScheduleHandle = ""
		l.mu.Unlock()
		l.journalEvent(&journal.Event{Type: journal.EventConfigChanged, Detail: "schedule cancelled"})
		return "cancelled", nil
	}

	interval, err := time.ParseDuration(p.Interval)
	if err != nil {
		return "", fmt.Errorf("parse interval: %w", err)
	}
	startDelay := time.Duration(0)
	if p.StartDelay != "" {
		if startDelay, err = time.ParseDuration(p.StartDelay); err != nil {
			return "", fmt.Errorf("parse start delay: %w", err)
		}
	}

	handle, err := l.scheduler.Register(startDelay, interval, p.MaxExecutions)
	if err != nil {
		return "", fmt.Errorf("schedule registration failed: %w", err)
	}
	if oldHandle != "" {
		l.scheduler.Cancel(oldHandle)
	}

	l.mu.Lock()
	l.state.ScheduleHandle = handle
	l.state.ExecutionInterval = interval
	l.state.MaxExecutions = p.MaxExecutions
	l.mu.Unlock()

	l.journalEvent(&journal.Event{
		Type:   journal.EventConfigChanged,
		Detail: fmt.Sprintf("scheduled every %s, max %d", interval, p.MaxExecutions),
	})
	slog.Info("Periodic execution scheduled", "handle", handle, "interval", interval, "maxExecutions", p.MaxExecutions)
	return handle, nil
}

// runOnce is the manual single-shot entry point for testing. It wraps the
// same tick logic and reports failure without changing lifecycle state.
func (l *Loop) runOnce(ctx context.Context) error {
	l.mu.RLock()
	active := l.state.Active
	l.mu.RUnlock()
	if !active {
		return errors.New("agent is not active")
	}
	l.executeTick(ctx)
	return nil
}

func (l *Loop) moveFunds(ctx context.Context, payload []byte, deposit bool) error {
	funds, ok := l.strategy.(FundsManager)
	if !ok {
		return errors.New("strategy cannot move funds")
	}
	var p FundsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	if deposit {
		return funds.Deposit(ctx, amount)
	}
	return funds.Withdraw(ctx, amount)
}

func (l *Loop) journalEvent(ev *journal.Event) {
	if l.jrnl == nil {
		return
	}
	if err := l.jrnl.AddEvent(ev); err != nil {
		slog.Warn("Failed to journal event", "type", ev.Type, "error", err)
	}
}
