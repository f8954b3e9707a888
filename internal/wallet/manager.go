package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/glowcloud/glow/internal/metrics"
)

var _ Wallet = (*Manager)(nil)

// DefaultDisconnectTimeout bounds Disconnect during shutdown.
const DefaultDisconnectTimeout = 5 * time.Second

// Connector builds a connected Wallet.
type Connector func(ctx context.Context) (Wallet, error)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	DisconnectTimeout time.Duration
	// ConnectRetry bounds how long a first connect keeps retrying. Zero
	// means a single attempt.
	ConnectRetry time.Duration
	Logger       *slog.Logger
}

// Manager owns a single lazily-connected Wallet shared by every request.
// It implements Wallet by delegating to the current connection.
type Manager struct {
	connect Connector
	cfg     ManagerConfig

	mu        sync.Mutex
	w         Wallet
	connected atomic.Bool
}

func NewManager(connect Connector, cfg ManagerConfig) *Manager {
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{connect: connect, cfg: cfg}
}

// Connected reports whether a wallet connection currently exists. It never
// blocks on a connect in progress.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Get returns the shared wallet, connecting on first use. Concurrent
// callers wait for the same connect.
func (m *Manager) Get(ctx context.Context) (Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.w != nil {
		return m.w, nil
	}
	return m.connectLocked(ctx)
}

// Reconnect drops the current connection and opens a fresh one.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
	_, err := m.connectLocked(ctx)
	return err
}

// Disconnect closes the connection, waiting at most DisconnectTimeout.
// Failures are logged and swallowed.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
	return nil
}

func (m *Manager) connectLocked(ctx context.Context) (Wallet, error) {
	var w Wallet
	op := func() error {
		var err error
		w, err = m.connect(ctx)
		return err
	}

	var err error
	if m.cfg.ConnectRetry > 0 {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = m.cfg.ConnectRetry
		err = backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			m.cfg.Logger.Warn("wallet connect failed, retrying", "error", err, "wait", wait)
		})
	} else {
		err = op()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	m.w = w
	m.connected.Store(true)
	metrics.SetBool(metrics.WalletConnected, true)
	m.cfg.Logger.Info("wallet connected")
	return w, nil
}

func (m *Manager) disconnectLocked() {
	if m.w == nil {
		return
	}
	w := m.w
	m.w = nil
	m.connected.Store(false)
	metrics.SetBool(metrics.WalletConnected, false)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DisconnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Disconnect(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			m.cfg.Logger.Warn("wallet disconnect failed", "error", err)
			return
		}
		m.cfg.Logger.Info("wallet disconnected")
	case <-ctx.Done():
		m.cfg.Logger.Warn("wallet disconnect timed out", "timeout", m.cfg.DisconnectTimeout)
	}
}

func (m *Manager) GetInfo(ctx context.Context) (*Info, error) {
	w, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.GetInfo(ctx)
}

func (m *Manager) ReceivePayment(ctx context.Context, req ReceiveRequest) (*Invoice, error) {
	w, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.ReceivePayment(ctx, req)
}

func (m *Manager) PrepareSendPayment(ctx context.Context, req PrepareRequest) (*PreparedPayment, error) {
	w, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.PrepareSendPayment(ctx, req)
}

func (m *Manager) SendPayment(ctx context.Context, p *PreparedPayment) (*SendResult, error) {
	w, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.SendPayment(ctx, p)
}

func (m *Manager) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	w, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return w.ListPayments(ctx, req)
}
