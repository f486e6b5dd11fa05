// Package agent implements the orchestration core: the loop that consumes
// tick, answer, failure, and control signals and drives an injected betting
// strategy. The loop owns lifecycle state; the strategy owns decisions.
package agent

import (
	"context"
	"time"

	"github.com/OddsClaw/OddsClaw/internal/inference"
)

// Strategy is the decision logic the loop orchestrates. PrepareTick runs the
// per-tick preamble and picks a subject; an empty subject means nothing to
// do. FrameRequest builds the inference request for a subject. HandleAnswer
// converts a delivered answer into an action. Validate gates activation.
type Strategy interface {
	Validate() error
	PrepareTick(ctx context.Context) (string, error)
	FrameRequest(ctx context.Context, subjectID string) (*inference.CompletionRequest, error)
	HandleAnswer(ctx context.Context, requestID, subjectID string, fields map[string]any) error
}

// State is a snapshot of the agent's lifecycle and counters.
type State struct {
	Owner             string        `json:"owner"`
	Active            bool          `json:"active"`
	ExecutionInterval time.Duration `json:"execution_interval"`
	MaxExecutions     int           `json:"max_executions"`
	ScheduleHandle    string        `json:"schedule_handle,omitempty"`
	RequestsSent      uint64        `json:"requests_sent"`
	ResponsesReceived uint64        `json:"responses_received"`
	RequestInFlight   bool          `json:"request_in_flight"`
	TicksCompleted    uint64        `json:"ticks_completed"`
}

// Control command names accepted by the loop.
const (
	CmdActivate      = "activate"
	CmdDeactivate    = "deactivate"
	CmdEmergencyStop = "emergency_stop"
	CmdPolicy        = "policy"
	CmdSchedule      = "schedule"
	CmdRunOnce       = "run_once"
	CmdDeposit       = "deposit"
	CmdWithdraw      = "withdraw"
)

// SchedulePayload configures periodic execution via the schedule command.
type SchedulePayload struct {
	StartDelay    string `json:"start_delay,omitempty"`
	Interval      string `json:"interval,omitempty"`
	MaxExecutions int    `json:"max_executions,omitempty"`
	Cancel        bool   `json:"cancel,omitempty"`
}

// FundsPayload carries a deposit or withdrawal amount.
type FundsPayload struct {
	Amount string `json:"amount"`
}
