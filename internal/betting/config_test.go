package betting

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"max bet below minimum", func(c *Config) { c.MaxBetSize = decimal.RequireFromString("0.5") }, true},
		{"max bet above ceiling", func(c *Config) { c.MaxBetSize = decimal.NewFromInt(500) }, true},
		{"max bet at ceiling", func(c *Config) { c.MaxBetSize = MaximumBet }, false},
		{"max bet at floor", func(c *Config) { c.MaxBetSize = MinimumBet }, false},
		{"confidence above 100", func(c *Config) { c.MinConfidence = 101 }, true},
		{"negative confidence", func(c *Config) { c.MinConfidence = -1 }, true},
		{"risk above 100", func(c *Config) { c.RiskThreshold = 150 }, true},
		{"zero position cap", func(c *Config) { c.MaxActivePositions = 0 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"max_bet_size":"5","min_confidence":60,"risk_threshold":80,"max_active_positions":10}`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if !cfg.MaxBetSize.Equal(decimal.NewFromInt(5)) || cfg.MinConfidence != 60 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	if _, err := ParseConfig([]byte(`{"max_bet_sise":"5"}`)); err == nil {
		t.Error("typoed field should be rejected")
	}
}

func TestParseConfigRejectsInvalidPolicy(t *testing.T) {
	if _, err := ParseConfig([]byte(`{"max_bet_size":"0.1","min_confidence":60,"max_active_positions":10}`)); err == nil {
		t.Error("out-of-bounds policy should be rejected")
	}
}
