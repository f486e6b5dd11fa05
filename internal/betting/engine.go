package betting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/inference"
	"github.com/OddsClaw/OddsClaw/internal/journal"
	"github.com/OddsClaw/OddsClaw/internal/market"
	"github.com/OddsClaw/OddsClaw/internal/positions"
)

// DataSource is the market-data collaborator the engine reads from.
type DataSource interface {
	PendingMarkets(ctx context.Context) ([]string, error)
	Market(ctx context.Context, id string) (*market.Market, error)
	MostRecentMarket(ctx context.Context, pendingOnly bool) (*market.Market, error)
}

// Ledger is the market-ledger collaborator the engine acts through.
type Ledger interface {
	TakePosition(ctx context.Context, marketID string, side market.Side, amount decimal.Decimal) error
	Winnings(ctx context.Context) (decimal.Decimal, error)
	ClaimWinnings(ctx context.Context) error
	Balance(ctx context.Context) (decimal.Decimal, error)
	Deposit(ctx context.Context, amount decimal.Decimal) error
	Withdraw(ctx context.Context, amount decimal.Decimal) error
}

// Engine is the betting decision engine. It selects a pending market,
// frames the question, and converts a validated answer into a sized
// position. Every discard and failure is journaled so agent history stays
// reconstructable.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	model  string
	data   DataSource
	ledger Ledger
	book   *positions.View
	jrnl   *journal.Journal
	bus    *bus.Bus
}

// NewEngine wires the engine to its collaborators. journal and bus may be
// nil in tests.
func NewEngine(cfg Config, model string, data DataSource, ledger Ledger, book *positions.View, j *journal.Journal, b *bus.Bus) *Engine {
	return &Engine{
		cfg:    cfg,
		model:  model,
		data:   data,
		ledger: ledger,
		book:   book,
		jrnl:   j,
		bus:    b,
	}
}

// Validate is the activation gate: policy bounds hold and both external
// collaborators are configured. Activation is refused when this fails.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if e.data == nil {
		return errors.New("market data source not configured")
	}
	if e.ledger == nil {
		return errors.New("market ledger not configured")
	}
	if e.book == nil {
		return errors.New("position book not configured")
	}
	return nil
}

// Policy returns the current betting policy.
func (e *Engine) Policy() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdatePolicy replaces the betting policy. An invalid update is refused
// and the previous policy stays in force.
func (e *Engine) UpdatePolicy(raw []byte) error {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.book.SetCap(cfg.MaxActivePositions)

	e.journalEvent(&journal.Event{Type: journal.EventConfigChanged, Detail: string(raw)})
	slog.Info("Betting policy updated", "maxBetSize", cfg.MaxBetSize, "minConfidence", cfg.MinConfidence)
	return nil
}

// PrepareTick runs the per-tick preamble and picks the next subject. Claims
// are processed first so bet sizing later in the tick sees the post-claim
// balance. An empty subject ID with a nil error means "nothing to do this
// round", which is a legitimate tick outcome, not a failure.
func (e *Engine) PrepareTick(ctx context.Context) (string, error) {
	e.processClaims(ctx)
	return e.selectSubject(ctx)
}

// processClaims queries claimable winnings and, if positive, submits one
// aggregate claim. Failures are reported and never block the rest of the
// tick.
func (e *Engine) processClaims(ctx context.Context) {
	winnings, err := e.ledger.Winnings(ctx)
	if err != nil {
		slog.Warn("Winnings query failed", "error", err)
		e.journalEvent(&journal.Event{Type: journal.EventClaimFailed, Reason: err.Error()})
		return
	}
	if !winnings.IsPositive() {
		return
	}

	e.journalEvent(&journal.Event{Type: journal.EventClaimAttempted, Amount: winnings.String()})
	if err := e.ledger.ClaimWinnings(ctx); err != nil {
		slog.Warn("Claim failed", "amount", winnings, "error", err)
		e.journalEvent(&journal.Event{Type: journal.EventClaimFailed, Amount: winnings.String(), Reason: err.Error()})
		e.notify(bus.TopicFailure, "", "", winnings.String(), "winnings claim rejected")
		return
	}

	e.book.RecordClaim(winnings)
	e.journalEvent(&journal.Event{Type: journal.EventClaimSucceeded, Amount: winnings.String()})
	e.notify(bus.TopicClaim, "", "", winnings.String(), "claimed winnings")
	slog.Info("Claimed winnings", "amount", winnings)
}

// selectSubject returns the first pending market without an active
// position, in the data source's listing order. If the listing call fails
// it falls back to the single most recent pending market.
func (e *Engine) selectSubject(ctx context.Context) (string, error) {
	ids, err := e.data.PendingMarkets(ctx)
	if err == nil {
		for _, id := range ids {
			if !e.book.Has(id) {
				return id, nil
			}
		}
		return "", nil
	}
	slog.Warn("Pending market listing failed, trying most recent", "error", err)

	m, fallbackErr := e.data.MostRecentMarket(ctx, true)
	if fallbackErr != nil {
		slog.Warn("Most recent market query failed", "error", fallbackErr)
		return "", nil
	}
	if !m.Pending() || e.book.Has(m.ID) {
		return "", nil
	}
	return m.ID, nil
}

// FrameRequest builds the inference request for a market: a natural-language
// prompt embedding the market and the agent's spendable balance, plus the
// fixed three-field output schema.
func (e *Engine) FrameRequest(ctx context.Context, subjectID string) (*inference.CompletionRequest, error) {
	m, err := e.data.Market(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", subjectID, err)
	}
	balance, err := e.ledger.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	prompt := fmt.Sprintf(
		"You are evaluating a prediction market.\n\n"+
			"Market: %s\n"+
			"Description: %s\n"+
			"Your current spendable balance: %s\n\n"+
			"Will this market resolve yes? Answer with your prediction, "+
			"an integer confidence from 0 to 100, and a short rationale.",
		m.Name, m.Description, balance)

	return &inference.CompletionRequest{
		System:      "You are a careful prediction-market analyst. Respond only with the structured fields requested.",
		Prompt:      prompt,
		Model:       e.model,
		MaxTokens:   500,
		Temperature: 0.2,
		Schema: &inference.Schema{
			Name: "prediction",
			Properties: []inference.Property{
				{Name: "answer", Type: inference.TypeString, Description: "The predicted outcome, exactly \"yes\" or \"no\"."},
				{Name: "confidence", Type: inference.TypeInteger, Description: "Confidence in the prediction, 0 to 100."},
				{Name: "rationale", Type: inference.TypeString, Description: "One or two sentences explaining the prediction."},
			},
		},
	}, nil
}

// HandleAnswer validates a structured answer for a market and, if every
// check passes, places a sized position on the ledger. Failed checks abort
// the action without failing the tick; each discard is journaled with its
// reason.
func (e *Engine) HandleAnswer(ctx context.Context, requestID, subjectID string, fields map[string]any) error {
	if e.book.Has(subjectID) {
		e.discard(requestID, subjectID, "active position already held")
		return nil
	}

	answer, err := DecodeAnswer(fields)
	if err != nil {
		e.discard(requestID, subjectID, err.Error())
		return nil
	}

	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	// Cap check happens before any ledger call: at the cap the bet is
	// simply not taken, no funds leave the account.
	if e.book.ActiveCount() >= cfg.MaxActivePositions {
		e.discard(requestID, subjectID, fmt.Sprintf("active position cap %d reached", cfg.MaxActivePositions))
		return nil
	}

	if answer.Confidence < cfg.MinConfidence {
		e.discard(requestID, subjectID, fmt.Sprintf("confidence %d below threshold %d", answer.Confidence, cfg.MinConfidence))
		return nil
	}

	amount := Size(answer.Confidence, MinimumBet, cfg.MaxBetSize)
	if amount.LessThan(MinimumBet) || amount.GreaterThan(cfg.MaxBetSize) {
		e.discard(requestID, subjectID, fmt.Sprintf("computed amount %s outside [%s,%s]", amount, MinimumBet, cfg.MaxBetSize))
		return nil
	}

	balance, err := e.ledger.Balance(ctx)
	if err != nil {
		e.discard(requestID, subjectID, fmt.Sprintf("balance query failed: %v", err))
		return nil
	}
	if balance.LessThan(amount) {
		e.discard(requestID, subjectID, fmt.Sprintf("balance %s below bet %s", balance, amount))
		return nil
	}

	if err := e.ledger.TakePosition(ctx, subjectID, answer.Side, amount); err != nil {
		slog.Warn("Ledger rejected position", "marketID", subjectID, "amount", amount, "error", err)
		e.journalEvent(&journal.Event{
			Type:      journal.EventRequestFailed,
			RequestID: requestID,
			MarketID:  subjectID,
			Amount:    amount.String(),
			Reason:    err.Error(),
		})
		e.notify(bus.TopicFailure, subjectID, requestID, amount.String(), "ledger rejected position")
		return nil
	}

	if err := e.book.Open(&positions.Position{
		MarketID:   subjectID,
		Side:       answer.Side,
		Amount:     amount,
		Confidence: answer.Confidence,
		Rationale:  answer.Rationale,
	}); err != nil {
		// Ledger accepted but the book refused; keep this loud, the book
		// and ledger now disagree until the market resolves.
		slog.Error("Position placed but not recorded", "marketID", subjectID, "error", err)
		return nil
	}

	e.journalEvent(&journal.Event{
		Type:      journal.EventPositionOpened,
		RequestID: requestID,
		MarketID:  subjectID,
		Amount:    amount.String(),
		Detail:    fmt.Sprintf("side=%s confidence=%d", answer.Side, answer.Confidence),
	})
	e.notify(bus.TopicPosition, subjectID, requestID, amount.String(),
		fmt.Sprintf("opened %s position at confidence %d", answer.Side, answer.Confidence))
	slog.Info("Position opened", "marketID", subjectID, "side", answer.Side, "amount", amount, "confidence", answer.Confidence)
	return nil
}

// Deposit moves funds into the ledger account.
func (e *Engine) Deposit(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive, got %s", amount)
	}
	if err := e.ledger.Deposit(ctx, amount); err != nil {
		return err
	}
	e.journalEvent(&journal.Event{Type: journal.EventFundsMoved, Amount: amount.String(), Detail: "deposit"})
	return nil
}

// Withdraw moves funds out of the ledger account.
func (e *Engine) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw amount must be positive, got %s", amount)
	}
	balance, err := e.ledger.Balance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("balance %s below withdrawal %s", balance, amount)
	}
	if err := e.ledger.Withdraw(ctx, amount); err != nil {
		return err
	}
	e.journalEvent(&journal.Event{Type: journal.EventFundsMoved, Amount: amount.Neg().String(), Detail: "withdraw"})
	return nil
}

// discard journals a rejected answer. Discards are silent at the decision
// layer but observable for audit.
func (e *Engine) discard(requestID, subjectID, reason string) {
	slog.Info("Answer discarded", "requestID", requestID, "marketID", subjectID, "reason", reason)
	e.journalEvent(&journal.Event{
		Type:      journal.EventAnswerDiscarded,
		RequestID: requestID,
		MarketID:  subjectID,
		Reason:    reason,
	})
}

func (e *Engine) journalEvent(ev *journal.Event) {
	if e.jrnl == nil {
		return
	}
	if err := e.jrnl.AddEvent(ev); err != nil {
		slog.Warn("Failed to journal event", "type", ev.Type, "error", err)
	}
}

func (e *Engine) notify(topic, subjectID, requestID, amount, text string) {
	if e.bus == nil {
		return
	}
	e.bus.Notify(&bus.Notification{
		Topic:     topic,
		SubjectID: subjectID,
		RequestID: requestID,
		Amount:    amount,
		Text:      text,
	})
}
