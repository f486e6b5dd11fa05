package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/OddsClaw/OddsClaw/internal/agent"
	"github.com/OddsClaw/OddsClaw/internal/config"
	"github.com/OddsClaw/OddsClaw/internal/journal"
)

// adminClient talks to a running daemon's admin API. Commands that mutate
// agent state go through here rather than touching the journal directly so
// that a single loop goroutine stays the only writer.
type adminClient struct {
	base   string
	token  string
	client *http.Client
}

func newAdminClient(cfg *config.Config) *adminClient {
	return &adminClient{
		base:   "http://" + cfg.Admin.Addr,
		token:  cfg.Owner.AdminToken,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type statusResponse struct {
	State     agent.State `json:"state"`
	Positions []struct {
		MarketID   string `json:"market_id"`
		Side       string `json:"side"`
		Amount     string `json:"amount"`
		Confidence int    `json:"confidence"`
		EnteredAt  string `json:"entered_at"`
	} `json:"positions"`
	TotalClaimed string `json:"total_claimed"`
}

func (c *adminClient) Status() (*statusResponse, error) {
	var out statusResponse
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Events() ([]journal.Event, error) {
	var out struct {
		Events []journal.Event `json:"events"`
	}
	if err := c.do(http.MethodGet, "/api/v1/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Command posts a control endpoint and returns the loop's detail string.
func (c *adminClient) Command(path string, body any) (string, error) {
	var out struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}
	if err := c.do(http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.Detail, nil
}

func (c *adminClient) do(method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("admin API returned %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// loadForClient loads config and bails out of the process with a readable
// message when it cannot. CLI commands that need the admin API share it.
func loadForClient() (*config.Config, *adminClient) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Owner.AdminToken == "" {
		fmt.Println("No admin token configured; set owner.adminToken or ODDSCLAW_OWNER_ADMIN_TOKEN.")
		os.Exit(1)
	}
	return cfg, newAdminClient(cfg)
}
