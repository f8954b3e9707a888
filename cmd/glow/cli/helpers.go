package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/client"
	"github.com/glowcloud/glow/internal/config"
	"github.com/glowcloud/glow/internal/connector"
	"github.com/glowcloud/glow/internal/connector/mssql"
	"github.com/glowcloud/glow/internal/connector/mysql"
	"github.com/glowcloud/glow/internal/connector/postgres"
	"github.com/glowcloud/glow/internal/connector/sqlite"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/notify"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/store"
	"github.com/glowcloud/glow/internal/wallet"
	"github.com/glowcloud/glow/internal/wallet/bridge"
	"github.com/glowcloud/glow/internal/wallet/wallettest"
)

// memoryWalletURL selects an in-process fake wallet for local development.
const memoryWalletURL = "memory://"

// loadConfig decodes and validates the server configuration from viper.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger from the log section. dev forces
// debug level.
func newLogger(cfg config.LogConfig, dev bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// dialects are the database engines the gateway can keep its state in.
var dialects = connector.Dialects{
	"postgres": postgres.New,
	"mysql":    mysql.New,
	"mssql":    mssql.New,
	"sqlite":   sqlite.New,
}

// openStore connects to the configured database and bootstraps its schema.
func openStore(cfg config.DatabaseConfig) (*store.Store, error) {
	dialect, err := dialects.Lookup(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("database.dsn is required for driver %s (or set DATABASE_URL)", cfg.Driver)
	}
	return store.Open(dialect, connector.ConnectionConfig{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.ConnMaxLifetime),
	}, store.WithAcquireTimeout(config.Duration(cfg.AcquireTimeout)))
}

// walletConnector returns how the gateway reaches its wallet.
func walletConnector(cfg config.WalletConfig, logger *slog.Logger) wallet.Connector {
	if cfg.URL == memoryWalletURL {
		logger.Warn("using in-memory development wallet; payments are simulated")
		fake := &wallettest.Fake{Info: wallet.Info{
			BalanceSats:       1_000_000,
			MaxPayableSats:    990_000,
			MaxReceivableSats: 5_000_000,
		}}
		return func(ctx context.Context) (wallet.Wallet, error) { return fake, nil }
	}
	return bridge.Connector(bridge.Config{
		URL:     cfg.URL,
		APIKey:  cfg.APIKey,
		Network: cfg.Network,
		Timeout: config.Duration(cfg.RequestTimeout),
	})
}

// newDispatcher builds the notification side-channel from config. It
// returns nil when no sink is configured.
func newDispatcher(cfg config.NotifyConfig, logger *slog.Logger) (*notify.Dispatcher, func()) {
	var (
		sinks   []notify.Sink
		closers []func()
	)
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.RedisAddr != "" {
		rs := notify.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis notification sink unreachable", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		sinks = append(sinks, rs)
		closers = append(closers, func() { rs.Close() })
	}

	d := notify.New(logger, cfg.QueueSize, sinks...)
	return d, func() {
		for _, c := range closers {
			c()
		}
	}
}

// gateway is the set of long-lived components shared by serve and mcp. It
// is built once and torn down in reverse order.
type gateway struct {
	store        *store.Store
	wallet       *wallet.Manager
	dispatcher   *notify.Dispatcher
	keys         *service.KeyService
	auth         *service.AuthService
	ledger       *budget.Ledger
	orchestrator *payment.Orchestrator

	closeSinks func()
	logger     *slog.Logger
}

func newGateway(cfg *config.Config, logger *slog.Logger) (*gateway, error) {
	st, err := openStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened",
		"driver", cfg.Database.Driver,
		"dsn", connector.RedactDSN(cfg.Database.Driver, cfg.Database.DSN))
	if cfg.Database.Driver == "sqlite" {
		logger.Warn("sqlite budget locks are process-local; run a single gateway instance")
	}

	dispatcher, closeSinks := newDispatcher(cfg.Notify, logger)
	dispatcher.Start()

	var events interface{ Publish(model.Event) }
	if dispatcher != nil {
		events = dispatcher
	}

	manager := wallet.NewManager(walletConnector(cfg.Wallet, logger), wallet.ManagerConfig{
		DisconnectTimeout: config.Duration(cfg.Wallet.DisconnectTimeout),
		ConnectRetry:      config.Duration(cfg.Wallet.ConnectRetry),
		Logger:            logger,
	})

	ledger := budget.NewLedger(st,
		budget.WithAcquireTimeout(config.Duration(cfg.Database.AcquireTimeout)),
		budget.WithLogger(logger),
		budget.WithEvents(events),
	)

	return &gateway{
		store:      st,
		wallet:     manager,
		dispatcher: dispatcher,
		keys:       service.NewKeyService(st, events),
		auth:       service.NewAuthService(st),
		ledger:     ledger,
		orchestrator: payment.NewOrchestrator(manager, ledger, payment.Config{
			SendTimeout: config.Duration(cfg.Wallet.SendTimeout),
			Logger:      logger,
			Events:      events,
		}),
		closeSinks: closeSinks,
		logger:     logger,
	}, nil
}

// Close disconnects the wallet, drains notifications and closes the store.
func (r *gateway) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.wallet.Disconnect(ctx)
	r.dispatcher.Shutdown(ctx)
	r.closeSinks()
	if err := r.store.Close(); err != nil {
		r.logger.Warn("store close failed", "error", err)
	}
}

// newClient builds an API client from the saved client config, GLOW_URL /
// GLOW_KEY and the --url / --key flags, in increasing precedence.
func newClient() (*client.Client, error) {
	path, err := config.ClientPath()
	if err != nil {
		return nil, err
	}
	cc, err := config.LoadClient(path)
	if err != nil {
		return nil, err
	}
	if remoteURL != "" {
		cc.URL = remoteURL
	}
	if remoteKey != "" {
		cc.Key = remoteKey
	}
	return client.New(client.Options{
		URL:       cc.URL,
		Key:       cc.Key,
		KeyHeader: viper.GetString("auth.api_key_header"),
		UserAgent: userAgent(),
	})
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optionalSats turns a flag value into an optional amount; 0 means unset.
func optionalSats(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// formatSats renders an optional amount for tables.
func formatSats(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// versionString returns a display version string.
// userAgent identifies the CLI to the gateway.
func userAgent() string {
	return "glow-cli/" + versionString()
}

func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
