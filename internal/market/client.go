package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataClient talks to the market-data collaborator over its HTTP API.
type DataClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDataClient creates a client for the market-data service.
func NewDataClient(baseURL, token string) *DataClient {
	return &DataClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PendingMarkets returns the IDs of markets still accepting positions, in
// the service's listing order.
func (c *DataClient) PendingMarkets(ctx context.Context) ([]string, error) {
	var out struct {
		Markets []string `json:"markets"`
	}
	if err := doJSON(ctx, c.httpClient, c.token, "GET", c.baseURL+"/markets/pending", nil, &out); err != nil {
		return nil, fmt.Errorf("list pending markets: %w", err)
	}
	return out.Markets, nil
}

// Market fetches one market's metadata.
func (c *DataClient) Market(ctx context.Context, id string) (*Market, error) {
	var m Market
	if err := doJSON(ctx, c.httpClient, c.token, "GET", c.baseURL+"/markets/"+id, nil, &m); err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return &m, nil
}

// MostRecentMarket fetches the newest market, optionally restricted to
// markets still pending. It is the fallback when the full listing fails.
func (c *DataClient) MostRecentMarket(ctx context.Context, pendingOnly bool) (*Market, error) {
	url := c.baseURL + "/markets/most-recent"
	if pendingOnly {
		url += "?pending=true"
	}
	var m Market
	if err := doJSON(ctx, c.httpClient, c.token, "GET", url, nil, &m); err != nil {
		return nil, fmt.Errorf("get most recent market: %w", err)
	}
	return &m, nil
}

// LedgerClient talks to the market ledger: positions, winnings, and the
// agent's spendable balance.
type LedgerClient struct {
	baseURL    string
	token      string
	agent      string
	httpClient *http.Client
}

// NewLedgerClient creates a client for the ledger service acting on behalf
// of the named agent account.
func NewLedgerClient(baseURL, token, agent string) *LedgerClient {
	return &LedgerClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		agent:   agent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TakePosition submits a sized position on a market.
func (c *LedgerClient) TakePosition(ctx context.Context, marketID string, side Side, amount decimal.Decimal) error {
	body := map[string]any{
		"agent":     c.agent,
		"market_id": marketID,
		"side":      side.String(),
		"amount":    amount.String(),
	}
	if err := doJSON(ctx, c.httpClient, c.token, "POST", c.baseURL+"/positions", body, nil); err != nil {
		return fmt.Errorf("take position on %s: %w", marketID, err)
	}
	return nil
}

// Winnings returns the agent's total claimable winnings.
func (c *LedgerClient) Winnings(ctx context.Context) (decimal.Decimal, error) {
	var out Balance
	if err := doJSON(ctx, c.httpClient, c.token, "GET", c.baseURL+"/winnings/"+c.agent, nil, &out); err != nil {
		return decimal.Zero, fmt.Errorf("get winnings: %w", err)
	}
	return out.Amount, nil
}

// ClaimWinnings submits one aggregate claim for everything claimable.
func (c *LedgerClient) ClaimWinnings(ctx context.Context) error {
	body := map[string]any{"agent": c.agent}
	if err := doJSON(ctx, c.httpClient, c.token, "POST", c.baseURL+"/winnings/claim", body, nil); err != nil {
		return fmt.Errorf("claim winnings: %w", err)
	}
	return nil
}

// Balance returns the agent's spendable balance.
func (c *LedgerClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out Balance
	if err := doJSON(ctx, c.httpClient, c.token, "GET", c.baseURL+"/balance/"+c.agent, nil, &out); err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return out.Amount, nil
}

// Deposit moves funds into the agent's ledger account.
func (c *LedgerClient) Deposit(ctx context.Context, amount decimal.Decimal) error {
	body := map[string]any{"agent": c.agent, "amount": amount.String()}
	if err := doJSON(ctx, c.httpClient, c.token, "POST", c.baseURL+"/balance/deposit", body, nil); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Withdraw moves funds out of the agent's ledger account.
func (c *LedgerClient) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	body := map[string]any{"agent": c.agent, "amount": amount.String()}
	if err := doJSON(ctx, c.httpClient, c.token, "POST", c.baseURL+"/balance/withdraw", body, nil); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, token, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
