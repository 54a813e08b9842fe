/*
Package transfer sends payout batch items to the external money-movement
provider.

PURPOSE:
  Implements commission.TransferClient over the provider's JSON HTTP API.
  Credentials and endpoint come from environment variables so the same
  binary can point at sandbox or production.

ENVIRONMENT:
  TRANSFER_BASE_URL  provider API root (default: sandbox)
  TRANSFER_CHANNEL   channel identifier issued by the provider
  TRANSFER_SECRET    API secret

CONTRACT:
  Transfer returns nil only when the provider acknowledged the disbursement.
  Every error is per-call; the engine records it as a failed item and keeps
  going with the rest of the batch.

SEE ALSO:
  - commission/send.go: per-item outcome handling
*/
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.sandbox.meridianpay.example/disburse-service/api/"

// Client talks to the disbursement provider.
type Client struct {
	baseURL string
	channel string
	secret  string
	http    *http.Client
	log     *zap.Logger
}

// NewFromEnv builds a client from TRANSFER_* environment variables.
// Missing credentials are allowed at construction time so the server can
// boot without them; Transfer calls will fail until they are set.
func NewFromEnv(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	baseURL := os.Getenv("TRANSFER_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	channel := os.Getenv("TRANSFER_CHANNEL")
	secret := os.Getenv("TRANSFER_SECRET")

	if channel == "" || secret == "" {
		log.Warn("transfer credentials not fully configured",
			zap.Bool("channel_set", channel != ""),
			zap.Bool("secret_set", secret != ""))
	}

	return &Client{
		baseURL: baseURL,
		channel: channel,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// New builds a client with explicit configuration. Used by tests against
// httptest servers.
func New(baseURL, channel, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		channel: channel,
		secret:  secret,
		http:    httpClient,
		log:     zap.NewNop(),
	}
}

type disburseRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

type disburseResponse struct {
	Status bool   `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"dialog,omitempty"`
}

// Transfer submits one disbursement and waits for the provider's verdict.
func (c *Client) Transfer(ctx context.Context, destination string, amount decimal.Decimal, reference string) error {
	if c.channel == "" || c.secret == "" {
		return fmt.Errorf("transfer credentials not configured: set TRANSFER_CHANNEL and TRANSFER_SECRET")
	}

	payload := disburseRequest{
		Destination: destination,
		Amount:      amount.StringFixed(2),
		Currency:    "USD",
		Reference:   reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"payment/disburse", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("channel", c.channel)
	req.Header.Set("secret", c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read transfer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transfer rejected: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out disburseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if !out.Status {
		return fmt.Errorf("transfer declined: code=%s detail=%s", out.Code, out.Detail)
	}

	c.log.Debug("transfer acknowledged",
		zap.String("reference", reference),
		zap.String("amount", payload.Amount))
	return nil
}
