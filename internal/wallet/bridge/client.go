// Package bridge talks to a wallet daemon sidecar over JSON/HTTP. The
// daemon owns the node, seed and storage; the gateway only ever sees the
// operations in wallet.Wallet.
package bridge

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

	"github.com/glowcloud/glow/internal/wallet"
)

const (
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 1 << 20
)

// Config locates and authenticates the wallet daemon.
type Config struct {
	URL     string
	APIKey  string
	Network string
	Timeout time.Duration
}

// Client implements wallet.Wallet against the daemon's /v1 API.
type Client struct {
	base    *url.URL
	apiKey  string
	network string
	http    *http.Client
}

var _ wallet.Wallet = (*Client)(nil)

// Error is a non-2xx daemon response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet daemon: %d %s", e.StatusCode, e.Message)
}

// New validates cfg and returns a client. It does not contact the daemon.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("wallet url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("wallet url must be http or https, got %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		base:    u,
		apiKey:  cfg.APIKey,
		network: cfg.Network,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Connector returns a wallet.Connector that verifies the daemon is reachable
// before handing out the client.
func Connector(cfg Config) wallet.Connector {
	return func(ctx context.Context) (wallet.Wallet, error) {
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if _, err := c.GetInfo(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (c *Client) GetInfo(ctx context.Context) (*wallet.Info, error) {
	var info wallet.Info
	if err := c.do(ctx, http.MethodPost, "/v1/info", map[string]bool{"ensure_synced": true}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ReceivePayment(ctx context.Context, req wallet.ReceiveRequest) (*wallet.Invoice, error) {
	var inv wallet.Invoice
	if err := c.do(ctx, http.MethodPost, "/v1/receive", req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) PrepareSendPayment(ctx context.Context, req wallet.PrepareRequest) (*wallet.PreparedPayment, error) {
	var p wallet.PreparedPayment
	if err := c.do(ctx, http.MethodPost, "/v1/prepare-send", req, &p); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", wallet.ErrInvalidDestination, apiErr.Message)
		}
		return nil, err
	}
	return &p, nil
}

func (c *Client) SendPayment(ctx context.Context, p *wallet.PreparedPayment) (*wallet.SendResult, error) {
	var res wallet.SendResult
	if err := c.do(ctx, http.MethodPost, "/v1/send", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListPayments(ctx context.Context, req wallet.ListPaymentsRequest) ([]wallet.Payment, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))

	var out struct {
		Payments []wallet.Payment `json:"payments"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payments?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Payments == nil {
		out.Payments = []wallet.Payment{}
	}
	return out.Payments, nil
}

// Disconnect asks the daemon to stop background sync for this session and
// releases idle connections.
func (c *Client) Disconnect(ctx context.Context) error {
	defer c.http.CloseIdleConnections()
	return c.do(ctx, http.MethodPost, "/v1/disconnect", nil, nil)
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
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.network != "" {
		req.Header.Set("X-Wallet-Network", c.network)
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
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &env) == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(data))
}
