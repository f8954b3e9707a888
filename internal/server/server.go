package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/handler"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/openapi"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/server/middleware"
	"github.com/glowcloud/glow/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	KeyHeader       string
	// RateLimitPerMinute throttles each API key; 0 disables limiting.
	RateLimitPerMinute int
	// PublicURL is advertised in the OpenAPI document. Empty derives it
	// from the request.
	PublicURL string
	Version   string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8000,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       90 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		MaxBodySize:        1 << 20,
		KeyHeader:          "X-API-Key",
		RateLimitPerMinute: 120,
	}
}

// WalletState is the slice of the wallet manager the HTTP layer needs.
type WalletState interface {
	Connected() bool
	Reconnect(ctx context.Context) error
}

// Deps are the long-lived components the routes are served by. They are
// created once at startup and shared by every request.
type Deps struct {
	Keys         *service.KeyService
	Auth         *service.AuthService
	Ledger       *budget.Ledger
	Orchestrator *payment.Orchestrator
	Wallet       WalletState
	Logger       *slog.Logger
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server and wires up all routes and middleware. Call Run
// to start accepting connections.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = "X-API-Key"
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", s.cfg.KeyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	walletHandler := handler.NewWalletHandler(s.deps.Orchestrator, s.deps.Ledger, s.deps.Wallet, s.logger)
	keyHandler := handler.NewKeyHandler(s.deps.Keys, s.deps.Ledger, s.logger)
	openAPIHandler := handler.NewOpenAPIHandler(openapi.Options{
		BaseURL:   s.cfg.PublicURL,
		Version:   s.cfg.Version,
		KeyHeader: s.cfg.KeyHeader,
	})

	// --- Health check (no auth required) ---
	r.Group(func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimitPerMinute))
		}
		r.Get("/health", handler.Health(s.deps.Wallet))
	})

	// --- Authenticated API ---
	r.Group(func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimitByKey(s.cfg.KeyHeader, s.cfg.RateLimitPerMinute))
		}
		r.Use(middleware.Authenticate(s.deps.Auth, s.cfg.KeyHeader))

		// Any valid key
		r.Get("/budget", walletHandler.Budget)
		r.Get("/openapi.json", openAPIHandler.ServeSpec)

		r.With(middleware.RequirePermission(model.PermBalance)).Get("/balance", walletHandler.Balance)
		r.With(middleware.RequirePermission(model.PermBalance)).Get("/payments", walletHandler.Payments)
		r.With(middleware.RequirePermission(model.PermReceive)).Post("/receive", walletHandler.Receive)
		r.With(middleware.RequirePermission(model.PermSend)).Post("/send", walletHandler.Send)

		// Administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermAdmin))

			r.Get("/keys", keyHandler.List)
			r.Post("/keys", keyHandler.Create)
			r.Delete("/keys/{id}", keyHandler.Revoke)
			r.Post("/sync", walletHandler.Sync)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router = r
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// for at most ShutdownTimeout. Closing the store and wallet is left to the
// caller, after Run returns.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: code, Message: message},
	})
}
