// Package telemetry samples runtime state that has no natural event to hang
// a metric update on, such as connection pool usage, and publishes it as
// Prometheus gauges.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glowcloud/glow/internal/metrics"
)

const defaultInterval = 15 * time.Second

// Snapshot is one observation of the gateway's resources.
type Snapshot struct {
	DBOpen  int
	DBInUse int
	DBIdle  int
}

// SnapshotFunc is called on every tick to gather current state.
type SnapshotFunc func() Snapshot

// Sampler runs SnapshotFunc on a fixed interval. A nil *Sampler is valid
// and does nothing.
type Sampler struct {
	snapshot SnapshotFunc
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sampler. It returns nil when fn is nil.
func New(fn SnapshotFunc, interval time.Duration, logger *slog.Logger) *Sampler {
	if fn == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		snapshot: fn,
		interval: interval,
		logger:   logger,
	}
}

// Start samples once immediately and then on every interval. Non-blocking.
func (s *Sampler) Start() {
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.sample()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sample()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop and waits for it to exit.
func (s *Sampler) Shutdown() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sampler) sample() {
	snap := s.snapshot()
	metrics.DBConnectionsOpen.Set(float64(snap.DBOpen))
	metrics.DBConnectionsInUse.Set(float64(snap.DBInUse))
	s.logger.Debug("resource sample",
		"db_open", snap.DBOpen,
		"db_in_use", snap.DBInUse,
		"db_idle", snap.DBIdle)
}
