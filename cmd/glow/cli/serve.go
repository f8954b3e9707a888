package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/glowcloud/glow/internal/config"
	"github.com/glowcloud/glow/internal/metrics"
	"github.com/glowcloud/glow/internal/server"
	"github.com/glowcloud/glow/internal/telemetry"
)

const banner = `
  __ _| | _____      __
 / _' | |/ _ \ \ /\ / /
| (_| | | (_) \ V  V /
 \__, |_|\___/ \_/\_/
 |___/
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		Long: `Start the HTTP server that exposes the wallet behind API keys.

The database schema is bootstrapped on first start. Use 'glow key create --admin'
to mint the first admin key before calling the key management endpoints.`,
		Example: `  glow serve
  glow serve --port 9000 --dev
  GLOW_DATABASE_DSN=postgres://glow@db/glow glow serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log, dev, os.Stderr)
	slog.SetDefault(logger)

	fmt.Fprint(os.Stderr, banner)
	fmt.Fprintln(os.Stderr)

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	sampler := telemetry.New(func() telemetry.Snapshot {
		open, inUse, idle := gw.store.Stats()
		return telemetry.Snapshot{DBOpen: open, DBInUse: inUse, DBIdle: idle}
	}, 0, logger)
	sampler.Start()
	defer sampler.Shutdown()

	srv := server.New(serverConfig(cfg), server.Deps{
		Keys:         gw.keys,
		Auth:         gw.auth,
		Ledger:       gw.ledger,
		Orchestrator: gw.orchestrator,
		Wallet:       gw.wallet,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "→ Glow %s\n", versionString())
	fmt.Fprintf(os.Stderr, "→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "→ Health:     http://%s:%d/health\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Metrics.Enabled {
		fmt.Fprintf(os.Stderr, "→ Metrics:    http://%s/metrics\n", cfg.Metrics.Addr)
	}
	fmt.Fprintln(os.Stderr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return runMetrics(gctx, cfg.Metrics.Addr, logger)
		})
	}
	return g.Wait()
}

// serverConfig maps the validated configuration onto the HTTP server.
func serverConfig(cfg *config.Config) server.Config {
	sc := server.DefaultConfig()
	sc.Host = cfg.Server.Host
	sc.Port = cfg.Server.Port
	sc.ReadTimeout = config.Duration(cfg.Server.ReadTimeout)
	sc.WriteTimeout = config.Duration(cfg.Server.WriteTimeout)
	sc.ShutdownTimeout = config.Duration(cfg.Server.ShutdownTimeout)
	sc.CORSOrigins = cfg.Server.CORS.Origins
	if n, err := config.ParseSize(cfg.Server.MaxBodySize); err == nil {
		sc.MaxBodySize = n
	}
	sc.KeyHeader = cfg.Auth.APIKeyHeader
	sc.RateLimitPerMinute = 0
	if cfg.RateLimit.Enabled {
		sc.RateLimitPerMinute = cfg.RateLimit.RequestsPerMinute
	}
	sc.PublicURL = cfg.Server.PublicURL
	sc.Version = versionString()
	return sc
}

// runMetrics serves /metrics on its own listener until ctx is done.
func runMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
