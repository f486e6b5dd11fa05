package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".oddsclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("ODDSCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// HomeDir returns the oddsclaw state directory (journal, lock files).
func HomeDir() (string, error) {
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("ODDSCLAW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If the file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("ODDSCLAW_OWNER", &cfg.Owner)
	envconfig.Process("ODDSCLAW_AGENT", &cfg.Agent)
	envconfig.Process("ODDSCLAW_PROVIDER", &cfg.Provider)
	envconfig.Process("ODDSCLAW_MARKETS", &cfg.Markets)
	envconfig.Process("ODDSCLAW_LEDGER", &cfg.Ledger)
	envconfig.Process("ODDSCLAW_BETTING", &cfg.Betting)
	envconfig.Process("ODDSCLAW_SCHEDULER", &cfg.Scheduler)
	envconfig.Process("ODDSCLAW_CALLBACK", &cfg.Callback)
	envconfig.Process("ODDSCLAW_ADMIN", &cfg.Admin)
	envconfig.Process("ODDSCLAW_NOTIFY", &cfg.Notify)

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
