// Package client is a Go client for the gateway's HTTP API. The remote CLI
// commands are built on it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glowcloud/glow/internal/model"
)

const (
	defaultTimeout   = 90 * time.Second
	maxResponseBytes = 4 << 20
)

// Options configures a Client.
type Options struct {
	URL       string
	Key       string
	KeyHeader string
	Timeout   time.Duration
	UserAgent string
}

// Client calls one gateway as one API key.
type Client struct {
	base      *url.URL
	key       string
	keyHeader string
	userAgent string
	http      *http.Client
}

// APIError is a non-2xx gateway response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Message    string
	Context    map[string]interface{}
	RetryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// New validates opts. It does not contact the gateway.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("gateway url is not configured (run 'glow config set-url' or set GLOW_URL)")
	}
	u, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url must be http or https, got %q", u.Scheme)
	}
	if opts.KeyHeader == "" {
		opts.KeyHeader = "X-API-Key"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "glow-cli"
	}
	return &Client{
		base:      u,
		key:       opts.Key,
		keyHeader: opts.KeyHeader,
		userAgent: opts.UserAgent,
		http:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

// ReceiveParams asks for an invoice. A nil amount creates an any-amount
// invoice.
type ReceiveParams struct {
	AmountSats  *int64 `json:"amount_sats,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendParams is an outgoing payment.
type SendParams struct {
	Destination string `json:"destination"`
	AmountSats  *int64 `json:"amount_sats,omitempty"`
}

// CreateKeyParams describes a key to mint over the API.
type CreateKeyParams struct {
	Name          string   `json:"name"`
	Permissions   []string `json:"permissions,omitempty"`
	BudgetSats    *int64   `json:"budget_sats,omitempty"`
	BudgetPeriod  *string  `json:"budget_period,omitempty"`
	MaxAmountSats *int64   `json:"max_amount_sats,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var out model.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Balance(ctx context.Context) (*model.BalanceResponse, error) {
	var out model.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Payments(ctx context.Context, offset, limit int) ([]model.PaymentView, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var out model.PaymentsResponse
	if err := c.do(ctx, http.MethodGet, "/payments?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

func (c *Client) Receive(ctx context.Context, p ReceiveParams) (*model.ReceiveResponse, error) {
	var out model.ReceiveResponse
	if err := c.do(ctx, http.MethodPost, "/receive", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Send(ctx context.Context, p SendParams) (*model.SendResponse, error) {
	var out model.SendResponse
	if err := c.do(ctx, http.MethodPost, "/send", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Budget(ctx context.Context) (*model.BudgetStatus, error) {
	var out model.BudgetStatus
	if err := c.do(ctx, http.MethodGet, "/budget", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateKey(ctx context.Context, p CreateKeyParams) (*model.CreateKeyResponse, error) {
	var out model.CreateKeyResponse
	if err := c.do(ctx, http.MethodPost, "/keys", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListKeys(ctx context.Context) ([]model.KeyView, error) {
	var out []model.KeyView
	if err := c.do(ctx, http.MethodGet, "/keys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RevokeKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/keys/"+url.PathEscape(id), nil, nil)
}

// Sync reconnects the gateway's wallet and returns the fresh balance.
func (c *Client) Sync(ctx context.Context) (*model.BalanceResponse, error) {
	var out model.BalanceResponse
	if err := c.do(ctx, http.MethodPost, "/sync", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenAPI returns the gateway's OpenAPI document as raw JSON.
func (c *Client) OpenAPI(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/openapi.json", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(c.keyHeader, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	var env model.ErrorResponse
	if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Context = env.Error.Context
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
