// Package betting implements the decision engine: market selection, question
// framing, answer validation, bet sizing, and claim automation.
package betting

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Hard bet bounds. Policy may tighten the ceiling but never escape these.
var (
	MinimumBet = decimal.NewFromInt(1)
	MaximumBet = decimal.NewFromInt(100)
)

// Config is the owner-mutable betting policy.
type Config struct {
	MaxBetSize         decimal.Decimal `json:"max_bet_size" envconfig:"MAX_BET_SIZE"`
	MinConfidence      int             `json:"min_confidence" envconfig:"MIN_CONFIDENCE"`
	RiskThreshold      int             `json:"risk_threshold" envconfig:"RISK_THRESHOLD"`
	MaxActivePositions int             `json:"max_active_positions" envconfig:"MAX_ACTIVE_POSITIONS"`
	HighRiskEnabled    bool            `json:"high_risk_enabled" envconfig:"HIGH_RISK_ENABLED"`
}

// DefaultConfig returns a conservative policy.
func DefaultConfig() Config {
	return Config{
		MaxBetSize:         decimal.NewFromInt(5),
		MinConfidence:      60,
		RiskThreshold:      80,
		MaxActivePositions: 10,
	}
}

// Validate checks the policy bounds. An invalid policy is refused, never
// silently corrected.
func (c *Config) Validate() error {
	if c.MaxBetSize.LessThan(MinimumBet) {
		return fmt.Errorf("max bet size %s below the minimum bet %s", c.MaxBetSize, MinimumBet)
	}
	if c.MaxBetSize.GreaterThan(MaximumBet) {
		return fmt.Errorf("max bet size %s above the maximum bet %s", c.MaxBetSize, MaximumBet)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min confidence %d out of range [0,100]", c.MinConfidence)
	}
	if c.RiskThreshold < 0 || c.RiskThreshold > 100 {
		return fmt.Errorf("risk threshold %d out of range [0,100]", c.RiskThreshold)
	}
	if c.MaxActivePositions <= 0 {
		return fmt.Errorf("max active positions must be positive, got %d", c.MaxActivePositions)
	}
	return nil
}

// ParseConfig decodes a policy update. Unknown fields are rejected so a
// typoed policy key cannot silently fall back to a default.
func ParseConfig(raw []byte) (Config, error) {
	var c Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
