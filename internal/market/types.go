// Package market models prediction markets and the HTTP clients for the two
// market collaborators: the data source (listings, metadata) and the ledger
// (positions, winnings, funds).
package market

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a market.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusResolved  Status = "resolved"
)

// Outcome is the resolved result of a market.
type Outcome string

const (
	OutcomeNo         Outcome = "no"
	OutcomeYes        Outcome = "yes"
	OutcomeUnresolved Outcome = "unresolved"
)

// Side is a binary prediction. It is a closed two-variant type: anything
// other than "yes" or "no" is rejected at the decode boundary instead of
// being compared as a loose string downstream.
type Side uint8

const (
	SideNo Side = iota
	SideYes
)

// ParseSide decodes a side literal. Only the exact lowercase literals are
// accepted; any other input is malformed.
func ParseSide(s string) (Side, error) {
	switch s {
	case "no":
		return SideNo, nil
	case "yes":
		return SideYes, nil
	default:
		return SideNo, fmt.Errorf("market: unrecognized side %q", s)
	}
}

func (s Side) String() string {
	if s == SideYes {
		return "yes"
	}
	return "no"
}

// MarshalJSON encodes the side as its literal.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a side literal, strictly.
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Market is the read-only view of one prediction market, owned by the
// market-data collaborator.
type Market struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Expiry          time.Time `json:"expiry"`
	Status          Status    `json:"status"`
	ResolvedOutcome Outcome   `json:"resolved_outcome"`
}

// Pending reports whether the market still accepts positions.
func (m *Market) Pending() bool {
	return m.Status == StatusPending
}

// Balance is an account balance in ledger currency units.
type Balance struct {
	Amount decimal.Decimal `json:"amount"`
}
