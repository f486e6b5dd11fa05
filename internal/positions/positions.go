// Package positions tracks the agent's own stakes: which markets it holds an
// active position on, at-most-one-active-position-per-market enforcement,
// and claim bookkeeping. The ledger collaborator holds the funds; this view
// only mirrors what the agent has done.
package positions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OddsClaw/OddsClaw/internal/journal"
	"github.com/OddsClaw/OddsClaw/internal/market"
)

var (
	// ErrPositionExists means an active position is already held on the market.
	ErrPositionExists = errors.New("positions: active position already held")
	// ErrPositionCap means the active-position cap would be exceeded.
	ErrPositionCap = errors.New("positions: active position cap reached")
	// ErrNoPosition means no active position is held on the market.
	ErrNoPosition = errors.New("positions: no active position")
)

// Position is one open stake.
type Position struct {
	MarketID   string
	Side       market.Side
	Amount     decimal.Decimal
	Confidence int
	Rationale  string
	EnteredAt  time.Time
}

// View is the in-memory position book, shadowed in the journal so it
// survives restarts.
type View struct {
	mu        sync.Mutex
	active    map[string]*Position
	claimed   decimal.Decimal
	maxActive int
	journal   *journal.Journal
}

// New creates an empty View. maxActive <= 0 means uncapped. The journal may
// be nil in tests.
func New(maxActive int, j *journal.Journal) *View {
	return &View{
		active:    make(map[string]*Position),
		maxActive: maxActive,
		journal:   j,
	}
}

// Rehydrate loads the active positions persisted by a previous run.
func (v *View) Rehydrate() error {
	if v.journal == nil {
		return nil
	}
	rows, err := v.journal.OpenPositions()
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, row := range rows {
		side, err := market.ParseSide(row.Side)
		if err != nil {
			slog.Warn("Skipping persisted position with bad side", "marketID", row.MarketID, "error", err)
			continue
		}
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			slog.Warn("Skipping persisted position with bad amount", "marketID", row.MarketID, "error", err)
			continue
		}
		v.active[row.MarketID] = &Position{
			MarketID:   row.MarketID,
			Side:       side,
			Amount:     amount,
			Confidence: row.Confidence,
			Rationale:  row.Rationale,
			EnteredAt:  row.EnteredAt,
		}
	}
	slog.Info("Rehydrated position book", "active", len(v.active))
	return nil
}

// Has reports whether an active position is held on the market.
func (v *View) Has(marketID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.active[marketID]
	return ok
}

// ActiveCount returns the number of open positions.
func (v *View) ActiveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.active)
}

// SetCap updates the active-position cap for subsequent opens.
func (v *View) SetCap(maxActive int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxActive = maxActive
}

// Open records a new active position. It refuses a second position on the
// same market and enforces the active-position cap.
func (v *View) Open(p *Position) error {
	if p.MarketID == "" {
		return fmt.Errorf("positions: market ID is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.active[p.MarketID]; ok {
		return ErrPositionExists
	}
	if v.maxActive > 0 && len(v.active) >= v.maxActive {
		return ErrPositionCap
	}
	if p.EnteredAt.IsZero() {
		p.EnteredAt = time.Now().UTC()
	}
	cp := *p
	v.active[p.MarketID] = &cp

	if v.journal != nil {
		err := v.journal.RecordPosition(&journal.PositionRow{
			MarketID:   p.MarketID,
			Side:       p.Side.String(),
			Amount:     p.Amount.String(),
			Confidence: p.Confidence,
			Rationale:  p.Rationale,
			EnteredAt:  p.EnteredAt,
		})
		if err != nil {
			slog.Warn("Failed to journal position", "marketID", p.MarketID, "error", err)
		}
	}
	return nil
}

// MarkResolved closes the active position on a market after the market
// settles.
func (v *View) MarkResolved(marketID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.active[marketID]; !ok {
		return ErrNoPosition
	}
	delete(v.active, marketID)

	if v.journal != nil {
		if err := v.journal.ClosePosition(marketID); err != nil {
			slog.Warn("Failed to journal position close", "marketID", marketID, "error", err)
		}
	}
	return nil
}

// RecordClaim adds a successful claim to the winnings tally.
func (v *View) RecordClaim(amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.claimed = v.claimed.Add(amount)
}

// TotalClaimed returns winnings claimed over this view's lifetime.
func (v *View) TotalClaimed() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claimed
}

// Snapshot returns the open positions ordered by market ID, for the status
// surface.
func (v *View) Snapshot() []Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Position, 0, len(v.active))
	for _, p := range v.active {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}
