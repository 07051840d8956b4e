// rtuprobe connects to an RTU gateway and prints routed updates to the console.
// Usage: go run ./cmd/rtuprobe --config configs/rtuclient.yaml --scopes Books,Users#Status
//
// With --call Service/Object it also issues one request and prints whether it went
// live or which fallback was executed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/rtu-client/internal/api"
	"github.com/rickgao/rtu-client/internal/auth"
	"github.com/rickgao/rtu-client/internal/config"
	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/request"
	"github.com/rickgao/rtu-client/internal/rtu"
)

func main() {
	configPath := flag.String("config", "configs/rtuclient.yaml", "path to config file")
	scopes := flag.String("scopes", "", "comma-separated scope keys to print")
	call := flag.String("call", "", "issue one GET Service/Object request once ready")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	provider := auth.NewProvider(auth.Identity{
		AppName:     cfg.Auth.AppName,
		AppPlatform: cfg.Auth.AppPlatform,
		DeviceID:    cfg.Auth.DeviceID,
	}, cfg.Auth.Token, nil)

	var executor *api.Client
	if cfg.HTTP.BaseURL != "" {
		executor = api.NewClient(cfg.HTTP.BaseURL, api.WithLogger(logger))
	}

	deps := rtu.Deps{
		Headers: provider,
		Factory: connection.NewClient,
		Logger:  logger,
		OnSecurityError: func(msg model.Message) {
			if msg.Error != nil {
				fmt.Printf("[SECURITY] %s: %s\n", msg.Error.Type, msg.Error.Message)
			}
			cancel()
		},
	}
	if executor != nil {
		deps.Executor = executor
	}

	rtuCfg := rtu.ConfigFrom(cfg)
	rtuCfg.Presence = nil
	client := rtu.New(rtuCfg, deps)

	for _, scope := range strings.Split(*scopes, ",") {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		client.Register(scope, printer(scope, *verbose), "rtuprobe")
	}

	ready := make(chan struct{})
	logger.Info("starting rtu client", "endpoint", cfg.RTU.Endpoint)
	if err := client.Start(ctx, func() { close(ready) }); err != nil {
		logger.Error("failed to start rtu client", "error", err)
		os.Exit(1)
	}

	if *call != "" {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-ready:
			}
			probeCall(ctx, client, *call, logger)
		}()
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := client.Stats()
				logger.Info("stats",
					"state", stats.Connection.State.String(),
					"connects", stats.Connection.Connects,
					"restarts", stats.Connection.Restarts,
					"frames", stats.Router.FramesReceived,
					"routed", stats.Router.MessagesRouted,
					"heartbeats", stats.Router.Heartbeats,
					"parse_errors", stats.Router.ParseErrors,
					"queue_depth", stats.Queue.Depth,
				)
			}
		}
	}()

	logger.Info("probing - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	client.Close(shutdownCtx)

	logger.Info("shutdown complete")
}

func printer(scope string, verbose bool) func(model.Message) {
	return func(msg model.Message) {
		if verbose {
			data, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Printf("[%s] %s\n", scope, data)
			return
		}
		fmt.Printf("[%s] topic=%s bytes=%d\n", scope, msg.Topic, len(msg.Data))
	}
}

// probeCall issues one GET for "Service/Object".
func probeCall(ctx context.Context, client *rtu.Client, target string, logger *slog.Logger) {
	service, object, ok := strings.Cut(target, "/")
	if !ok {
		logger.Error("call must be Service/Object", "call", target)
		return
	}

	resp, err := client.Do(ctx, request.Request{Service: service, Object: object})
	switch {
	case err != nil && resp.Outcome.Fallback != nil:
		fmt.Printf("[CALL] fallback %s %s failed: %v\n", resp.Outcome.Fallback.Method, resp.Outcome.Fallback.Path, err)
	case err != nil:
		fmt.Printf("[CALL] rejected: %v\n", err)
	case resp.Outcome.Live:
		fmt.Printf("[CALL] sent live %s/%s\n", service, object)
	default:
		fmt.Printf("[CALL] fallback %s %s -> %d (%d bytes)\n",
			resp.Outcome.Fallback.Method, resp.Outcome.Fallback.Path, resp.HTTP.StatusCode, len(resp.HTTP.Body))
	}
}
