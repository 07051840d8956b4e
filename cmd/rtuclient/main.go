// rtuclient runs one RTU client against a gateway, logs subscribed traffic and
// serves health and Prometheus endpoints.
// Usage: go run ./cmd/rtuclient --config configs/rtuclient.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/rtu-client/internal/api"
	"github.com/rickgao/rtu-client/internal/auth"
	"github.com/rickgao/rtu-client/internal/bus"
	"github.com/rickgao/rtu-client/internal/config"
	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/database"
	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/router"
	"github.com/rickgao/rtu-client/internal/rtu"
	"github.com/rickgao/rtu-client/internal/session"
	"github.com/rickgao/rtu-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/rtuclient.yaml", "path to config file")
	subscribe := flag.String("subscribe", "", "comma-separated scope keys to log (Service or Service#Object)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting rtuclient", append(version.LogAttrs(), "config", *configPath)...)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Auth
	var signer *auth.Signer
	if cfg.Auth.KeyID != "" {
		signer, err = auth.LoadSigner(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load signing key", "error", err)
			os.Exit(1)
		}
		logger.Info("request signing enabled", "key_id", cfg.Auth.KeyID)
	}

	provider := auth.NewProvider(auth.Identity{
		AppName:     cfg.Auth.AppName,
		AppPlatform: cfg.Auth.AppPlatform,
		DeviceID:    cfg.Auth.DeviceID,
	}, cfg.Auth.Token, signer)

	// Session store
	store, pool, err := openSessionStore(ctx, cfg.Session, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	guard := session.NewGuard(store, provider, cfg.Auth.DeviceID, logger.With("component", "session"))
	if cfg.Auth.Token != "" {
		if err := store.Save(ctx, session.Session{DeviceID: cfg.Auth.DeviceID, Token: cfg.Auth.Token}); err != nil {
			logger.Warn("failed to persist session token", "error", err)
		}
	} else if token, err := guard.Restore(ctx); err != nil {
		logger.Warn("failed to restore session", "error", err)
	} else if token != "" {
		logger.Info("session restored", "device_id", cfg.Auth.DeviceID)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Local event bus
	eventBus := bus.New(bus.Config{BufferSize: cfg.Bus.BufferSize}, logger.With("component", "bus"))
	defer eventBus.Close()

	// Fallback executor
	apiClient := api.NewClient(
		cfg.HTTP.BaseURL,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.HTTP.Timeout),
		api.WithRetries(cfg.HTTP.MaxRetries, cfg.HTTP.RetryBackoff),
	)

	client := rtu.New(rtu.ConfigFrom(cfg), rtu.Deps{
		Headers:         provider,
		Factory:         connection.NewClient,
		Executor:        apiClient,
		Notifier:        eventBus,
		OnSecurityError: guard.OnSecurityError,
		Logger:          logger.With("instance_id", cfg.Instance.ID),
		Metrics:         m,
	})

	for _, scope := range splitScopes(*subscribe) {
		client.Register(scope, logHandler(logger, scope), "rtuclient")
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := eventBus.Subscribe(gctx, router.DefaultSecurityTopic, func(ctx context.Context, msg bus.Message) error {
		logger.Warn("security stop published", "payload", string(msg.Payload))
		return nil
	}); err != nil {
		logger.Error("failed to subscribe to security topic", "error", err)
		os.Exit(1)
	}

	// Health and metrics server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHandler(client, pool, reg, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := client.Start(gctx, func() {
		logger.Info("rtu client ready", "live", client.IsReady())
	}); err != nil {
		logger.Error("failed to start rtu client", "error", err)
		cancel()
	}

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := client.Close(shutdownCtx); err != nil {
		logger.Warn("rtu client close", "error", err)
	}
	if err := guard.Wait(shutdownCtx); err != nil {
		logger.Warn("session clear still pending", "error", err)
	}

	stats := client.Stats()
	logger.Info("rtuclient stopped",
		"connects", stats.Connection.Connects,
		"restarts", stats.Connection.Restarts,
		"routed", stats.Router.MessagesRouted,
	)
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openSessionStore returns the configured store. pool is nil for the memory store.
func openSessionStore(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (session.Store, *pgxpool.Pool, error) {
	if cfg.Store != "postgres" {
		return session.NewMemoryStore(), nil, nil
	}

	logger.Info("connecting to database",
		"host", cfg.Postgres.Host,
		"port", cfg.Postgres.Port,
		"database", cfg.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	store := session.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("database connected")
	return store, pool, nil
}

func splitScopes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func logHandler(logger *slog.Logger, scope string) func(model.Message) {
	return func(msg model.Message) {
		logger.Info("update",
			"scope", scope,
			"topic", msg.Topic,
			"bytes", len(msg.Data),
		)
	}
}

// createHandler serves /health, /debug/stats and the metrics endpoint.
func createHandler(client *rtu.Client, pool *pgxpool.Pool, reg *prometheus.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Live channel down means requests take the fallback path.
		state := client.State()
		health.Components["connection"] = state.String()
		if !client.IsReady() {
			health.Status = "degraded"
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["session_store"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["session_store"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.Stats())
	})

	return mux
}
