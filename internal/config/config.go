// Package config provides configuration types and loading for oddsclaw.
package config

import (
	"time"

	"github.com/OddsClaw/OddsClaw/internal/betting"
	"github.com/OddsClaw/OddsClaw/internal/notify"
	"github.com/OddsClaw/OddsClaw/internal/scheduler"
)

// Config is the root configuration struct.
// Top-level groups: Owner, Agent, Provider, Markets, Ledger, Betting,
// Scheduler, Callback, Admin, Notify.
type Config struct {
	Owner     OwnerConfig      `json:"owner"`
	Agent     AgentConfig      `json:"agent"`
	Provider  ProviderConfig   `json:"provider"`
	Markets   MarketsConfig    `json:"markets"`
	Ledger    LedgerConfig     `json:"ledger"`
	Betting   betting.Config   `json:"betting"`
	Scheduler scheduler.Config `json:"scheduler"`
	Callback  CallbackConfig   `json:"callback"`
	Admin     AdminConfig      `json:"admin"`
	Notify    notify.Config    `json:"notify"`
}

// OwnerConfig identifies the agent's owner and the token gating admin calls.
type OwnerConfig struct {
	Name       string `json:"name" envconfig:"NAME"`
	AdminToken string `json:"adminToken" envconfig:"ADMIN_TOKEN"`
}

// AgentConfig groups lifecycle and scheduling defaults.
type AgentConfig struct {
	AutoStart     bool   `json:"autoStart" envconfig:"AUTO_START"`
	StartDelay    string `json:"startDelay" envconfig:"START_DELAY"`
	Interval      string `json:"interval" envconfig:"INTERVAL"`
	MaxExecutions int    `json:"maxExecutions" envconfig:"MAX_EXECUTIONS"`
	JournalPath   string `json:"journalPath,omitempty" envconfig:"JOURNAL_PATH"`
}

// ProviderConfig configures the inference provider.
type ProviderConfig struct {
	APIKey         string `json:"apiKey" envconfig:"API_KEY"`
	APIBase        string `json:"apiBase" envconfig:"API_BASE"`
	Model          string `json:"model" envconfig:"MODEL"`
	TimeoutSeconds int    `json:"timeoutSeconds" envconfig:"TIMEOUT_SECONDS"`
}

// Timeout returns the provider call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MarketsConfig configures the market-data collaborator.
type MarketsConfig struct {
	URL   string `json:"url" envconfig:"URL"`
	Token string `json:"token" envconfig:"TOKEN"`
}

// LedgerConfig configures the market-ledger collaborator.
type LedgerConfig struct {
	URL     string `json:"url" envconfig:"URL"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Account string `json:"account" envconfig:"ACCOUNT"`
}

// CallbackConfig configures the external answer feed.
type CallbackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	GroupID string `json:"groupId" envconfig:"GROUP_ID"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// AdminConfig configures the administrative HTTP server.
type AdminConfig struct {
	Addr string `json:"addr" envconfig:"ADDR"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			StartDelay:    "1m",
			Interval:      "1h",
			MaxExecutions: 0,
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Betting: betting.DefaultConfig(),
		Scheduler: scheduler.Config{
			Enabled:      true,
			Resolution:   time.Second,
			MaxConcTicks: 1,
		},
		Callback: CallbackConfig{
			GroupID: "oddsclaw",
			Topic:   "inference-answers",
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:8090",
		},
	}
}
