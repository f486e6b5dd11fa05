package betting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/OddsClaw/OddsClaw/internal/market"
	"github.com/OddsClaw/OddsClaw/internal/positions"
)

type fakeData struct {
	pending    []string
	pendingErr error
	markets    map[string]*market.Market
	recent     *market.Market
	recentErr  error
}

func (d *fakeData) PendingMarkets(_ context.Context) ([]string, error) {
	return d.pending, d.pendingErr
}

func (d *fakeData) Market(_ context.Context, id string) (*market.Market, error) {
	m, ok := d.markets[id]
	if !ok {
		return nil, errors.New("no such market")
	}
	return m, nil
}

func (d *fakeData) MostRecentMarket(_ context.Context, _ bool) (*market.Market, error) {
	return d.recent, d.recentErr
}

type placedPosition struct {
	marketID string
	side     market.Side
	amount   decimal.Decimal
}

type fakeLedger struct {
	balance     decimal.Decimal
	winnings    decimal.Decimal
	claimErr    error
	positionErr error
	placed      []placedPosition
	claims      int
}

func (l *fakeLedger) TakePosition(_ context.Context, marketID string, side market.Side, amount decimal.Decimal) error {
	if l.positionErr != nil {
		return l.positionErr
	}
	l.placed = append(l.placed, placedPosition{marketID, side, amount})
	l.balance = l.balance.Sub(amount)
	return nil
}

func (l *fakeLedger) Winnings(_ context.Context) (decimal.Decimal, error) {
	return l.winnings, nil
}

func (l *fakeLedger) ClaimWinnings(_ context.Context) error {
	l.claims++
	if l.claimErr != nil {
		return l.claimErr
	}
	l.balance = l.balance.Add(l.winnings)
	l.winnings = decimal.Zero
	return nil
}

func (l *fakeLedger) Balance(_ context.Context) (decimal.Decimal, error) {
	return l.balance, nil
}

func (l *fakeLedger) Deposit(_ context.Context, amount decimal.Decimal) error {
	l.balance = l.balance.Add(amount)
	return nil
}

func (l *fakeLedger) Withdraw(_ context.Context, amount decimal.Decimal) error {
	l.balance = l.balance.Sub(amount)
	return nil
}

func newTestEngine(data *fakeData, ledger *fakeLedger) (*Engine, *positions.View) {
	book := positions.New(0, nil)
	cfg := Config{
		MaxBetSize:         decimal.NewFromInt(5),
		MinConfidence:      60,
		RiskThreshold:      80,
		MaxActivePositions: 10,
	}
	return NewEngine(cfg, "test-model", data, ledger, book, nil, nil), book
}

func answerFields(side string, confidence float64) map[string]any {
	return map[string]any{"answer": side, "confidence": confidence, "rationale": "test rationale"}
}

func TestPrepareTickSkipsHeldMarkets(t *testing.T) {
	data := &fakeData{pending: []string{"m-1", "m-2", "m-3"}}
	ledger := &fakeLedger{balance: decimal.NewFromInt(10)}
	e, book := newTestEngine(data, ledger)
	book.Open(&positions.Position{MarketID: "m-1", Amount: decimal.NewFromInt(1)})

	subject, err := e.PrepareTick(context.Background())
	if err != nil {
		t.Fatalf("PrepareTick: %v", err)
	}
	if subject != "m-2" {
		t.Errorf("expected first unheld market m-2, got %q", subject)
	}
}

func TestPrepareTickFallsBackToMostRecent(t *testing.T) {
	data := &fakeData{
		pendingErr: errors.New("listing unavailable"),
		recent:     &market.Market{ID: "m-9", Status: market.StatusPending},
	}
	e, _ := newTestEngine(data, &fakeLedger{balance: decimal.NewFromInt(10)})

	subject, err := e.PrepareTick(context.Background())
	if err != nil {
		t.Fatalf("PrepareTick: %v", err)
	}
	if subject != "m-9" {
		t.Errorf("expected fallback market m-9, got %q", subject)
	}
}

func TestPrepareTickNothingToDo(t *testing.T) {
	data := &fakeData{
		pendingErr: errors.New("listing unavailable"),
		recentErr:  errors.New("also down"),
	}
	e, _ := newTestEngine(data, &fakeLedger{balance: decimal.NewFromInt(10)})

	subject, err := e.PrepareTick(context.Background())
	if err != nil {
		t.Fatalf("nothing to do must not be an error, got %v", err)
	}
	if subject != "" {
		t.Errorf("expected no subject, got %q", subject)
	}
}

func TestClaimsRunBeforeBetting(t *testing.T) {
	// Pre-claim balance cannot cover the bet; claimable winnings can.
	data := &fakeData{pending: []string{"m-1"}}
	ledger := &fakeLedger{
		balance:  decimal.RequireFromString("0.5"),
		winnings: decimal.NewFromInt(10),
	}
	e, book := newTestEngine(data, ledger)

	subject, err := e.PrepareTick(context.Background())
	if err != nil || subject != "m-1" {
		t.Fatalf("PrepareTick = %q, %v", subject, err)
	}
	if ledger.claims != 1 {
		t.Fatalf("expected one claim, got %d", ledger.claims)
	}

	if err := e.HandleAnswer(context.Background(), "req-1", "m-1", answerFields("yes", 70)); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if !book.Has("m-1") {
		t.Fatal("post-claim balance should have covered the bet")
	}
	if len(ledger.placed) != 1 || !ledger.placed[0].amount.Equal(decimal.RequireFromString("3.8")) {
		t.Errorf("unexpected placement: %+v", ledger.placed)
	}
}

func TestClaimFailureDoesNotBlockTick(t *testing.T) {
	data := &fakeData{pending: []string{"m-1"}}
	ledger := &fakeLedger{
		balance:  decimal.NewFromInt(10),
		winnings: decimal.NewFromInt(2),
		claimErr: errors.New("claim rejected"),
	}
	e, _ := newTestEngine(data, ledger)

	subject, err := e.PrepareTick(context.Background())
	if err != nil {
		t.Fatalf("PrepareTick: %v", err)
	}
	if subject != "m-1" {
		t.Errorf("betting should proceed after failed claim, got %q", subject)
	}
}

func TestHandleAnswerPlacesSizedPosition(t *testing.T) {
	data := &fakeData{pending: []string{"m-1"}}
	ledger := &fakeLedger{balance: decimal.NewFromInt(10)}
	e, book := newTestEngine(data, ledger)

	if err := e.HandleAnswer(context.Background(), "req-1", "m-1", answerFields("no", 100)); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if len(ledger.placed) != 1 {
		t.Fatalf("expected one placement, got %d", len(ledger.placed))
	}
	p := ledger.placed[0]
	if p.side != market.SideNo || !p.amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected placement: %+v", p)
	}
	if !book.Has("m-1") {
		t.Error("position not recorded in the book")
	}
}

func TestHandleAnswerDiscardsWhenPositionHeld(t *testing.T) {
	data := &fakeData{}
	ledger := &fakeLedger{balance: decimal.NewFromInt(10)}
	e, book := newTestEngine(data, ledger)
	book.Open(&positions.Position{MarketID: "m-1", Amount: decimal.NewFromInt(1)})

	if err := e.HandleAnswer(context.Background(), "req-1", "m-1", answerFields("yes", 95)); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if len(ledger.placed) != 0 {
		t.Error("no balance may be spent on a held market")
	}
	if book.ActiveCount() != 1 {
		t.Errorf("expected the original position only, got %d", book.ActiveCount())
	}
}

func TestHandleAnswerAtCapSpendsNothing(t *testing.T) {
	data := &fakeData{}
	ledger := &fakeLedger{balance: decimal.NewFromInt(100)}
	book := positions.New(1, nil)
	cfg := Config{
		MaxBetSize:         decimal.NewFromInt(5),
		MinConfidence:      60,
		RiskThreshold:      80,
		MaxActivePositions: 1,
	}
	e := NewEngine(cfg, "test-model", data, ledger, book, nil, nil)
	book.Open(&positions.Position{MarketID: "m-1", Amount: decimal.NewFromInt(1)})

	if err := e.HandleAnswer(context.Background(), "req-2", "m-2", answerFields("yes", 90)); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if len(ledger.placed) != 0 {
		t.Error("at the cap no ledger position may be placed")
	}
	if ledger.balance.String() != "100" {
		t.Errorf("balance must be untouched at the cap, got %s", ledger.balance)
	}
	if book.Has("m-2") {
		t.Error("no position may be recorded at the cap")
	}
}

func TestHandleAnswerDiscards(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]any
	}{
		{"low confidence", answerFields("yes", 40)},
		{"malformed side", answerFields("definitely", 90)},
		{"confidence out of range", answerFields("yes", 150)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &fakeLedger{balance: decimal.NewFromInt(10)}
			e, book := newTestEngine(&fakeData{}, ledger)
			if err := e.HandleAnswer(context.Background(), "req-1", "m-1", tc.fields); err != nil {
				t.Fatalf("discard must not fail the tick: %v", err)
			}
			if len(ledger.placed) != 0 || book.ActiveCount() != 0 {
				t.Error("discarded answer must not open a position")
			}
		})
	}
}

func TestHandleAnswerInsufficientBalance(t *testing.T) {
	ledger := &fakeLedger{balance: decimal.RequireFromString("0.5")}
	e, book := newTestEngine(&fakeData{}, ledger)

	if err := e.HandleAnswer(context.Background(), "req-1", "m-1", answerFields("yes", 70)); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if len(ledger.placed) != 0 || book.ActiveCount() != 0 {
		t.Error("bet above balance must not be placed")
	}
}

func TestLedgerRejectionLeavesNoPosition(t *testing.T) {
	ledger := &fakeLedger{balance: decimal.NewFromInt(10), positionErr: errors.New("market closed")}
	e, book := newTestEngine(&fakeData{}, ledger)

	if err := e.HandleAnswer(context.Background(), "req-1", "m-1", answerFields("yes", 70)); err != nil {
		t.Fatalf("ledger rejection must not fail the tick: %v", err)
	}
	if book.Has("m-1") {
		t.Error("rejected placement must leave no position recorded")
	}
}

func TestFrameRequest(t *testing.T) {
	data := &fakeData{markets: map[string]*market.Market{
		"m-1": {ID: "m-1", Name: "Rain tomorrow", Description: "Will it rain in the city tomorrow?", Status: market.StatusPending},
	}}
	ledger := &fakeLedger{balance: decimal.RequireFromString("12.5")}
	e, _ := newTestEngine(data, ledger)

	req, err := e.FrameRequest(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("FrameRequest: %v", err)
	}
	for _, want := range []string{"Rain tomorrow", "Will it rain in the city tomorrow?", "12.5"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
	if req.Schema == nil || len(req.Schema.Properties) != 3 {
		t.Fatalf("expected three-field schema, got %+v", req.Schema)
	}
	names := []string{req.Schema.Properties[0].Name, req.Schema.Properties[1].Name, req.Schema.Properties[2].Name}
	if names[0] != "answer" || names[1] != "confidence" || names[2] != "rationale" {
		t.Errorf("unexpected schema field order: %v", names)
	}
	if req.Model != "test-model" {
		t.Errorf("unexpected model %q", req.Model)
	}
}

func TestUpdatePolicyRefusesInvalid(t *testing.T) {
	e, _ := newTestEngine(&fakeData{}, &fakeLedger{})
	before := e.Policy()

	err := e.UpdatePolicy([]byte(`{"max_bet_size":"500","min_confidence":60,"max_active_positions":10}`))
	if err == nil {
		t.Fatal("out-of-bounds policy must be refused")
	}
	if !e.Policy().MaxBetSize.Equal(before.MaxBetSize) {
		t.Error("refused update must leave the previous policy in force")
	}
}

func TestValidateRequiresCollaborators(t *testing.T) {
	book := positions.New(0, nil)
	e := NewEngine(DefaultConfig(), "m", nil, &fakeLedger{}, book, nil, nil)
	if err := e.Validate(); err == nil {
		t.Error("missing data source must fail validation")
	}

	e = NewEngine(DefaultConfig(), "m", &fakeData{}, nil, book, nil, nil)
	if err := e.Validate(); err == nil {
		t.Error("missing ledger must fail validation")
	}

	e = NewEngine(DefaultConfig(), "m", &fakeData{}, &fakeLedger{}, book, nil, nil)
	if err := e.Validate(); err != nil {
		t.Errorf("fully wired engine should validate: %v", err)
	}
}

func TestWithdrawChecksBalance(t *testing.T) {
	ledger := &fakeLedger{balance: decimal.NewFromInt(3)}
	e, _ := newTestEngine(&fakeData{}, ledger)

	if err := e.Withdraw(context.Background(), decimal.NewFromInt(5)); err == nil {
		t.Error("withdrawal above balance must fail")
	}
	if err := e.Withdraw(context.Background(), decimal.NewFromInt(2)); err != nil {
		t.Errorf("Withdraw: %v", err)
	}
	if !ledger.balance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected balance 1, got %s", ledger.balance)
	}
}
