package rtu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rtu-client/internal/api"
	"github.com/rickgao/rtu-client/internal/auth"
	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/presence"
	"github.com/rickgao/rtu-client/internal/registry"
	"github.com/rickgao/rtu-client/internal/request"
	"github.com/rickgao/rtu-client/internal/router"
)

// Errors
var (
	ErrNoExecutor = errors.New("no HTTP executor configured")
)

// Deps are the collaborators of a client. All fields are optional.
type Deps struct {
	Headers         auth.HeaderProvider
	Factory         connection.ClientFactory // Nil runs in degraded (fallback-only) mode
	Executor        presence.Executor        // Executes fallbacks for Do and presence
	Notifier        router.Notifier          // Local event bus
	TickHook        router.TickHook          // Replaces the presence refresher
	OnSecurityError func(msg model.Message)
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Client is one RTU instance.
type Client struct {
	logger    *slog.Logger
	manager   *connection.Manager
	registry  *registry.Registry
	router    router.Router
	facade    *request.Facade
	refresher *presence.Refresher
	executor  presence.Executor

	startOnce sync.Once
	closeOnce sync.Once
}

// Stats aggregates the statistics of every component.
type Stats struct {
	Connection connection.ManagerStats
	Queue      connection.QueueStats
	Router     router.RouterStats
	Presence   presence.Stats
	Scopes     []string
}

// Response is the completion of Do.
type Response struct {
	Outcome request.Outcome
	HTTP    *api.Response // Set when the fallback was executed
}

// New builds a client. Nothing connects until Start.
func New(cfg Config, deps Deps) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := connection.NewManager(cfg.Connection, deps.Headers, deps.Factory,
		logger.With("component", "connection"), deps.Metrics)
	reg := registry.New(logger.With("component", "registry"), deps.Metrics)
	facade := request.NewFacade(manager, deps.Headers, logger.With("component", "request"), deps.Metrics)

	c := &Client{
		logger:   logger,
		manager:  manager,
		registry: reg,
		facade:   facade,
		executor: deps.Executor,
	}

	hook := deps.TickHook
	if hook == nil && cfg.Presence != nil {
		c.refresher = presence.New(*cfg.Presence, facade, deps.Executor, logger.With("component", "presence"))
		hook = c.refresher
	}

	c.router = router.NewRouter(cfg.Router, manager.Frames(), reg, manager, router.Hooks{
		Tick:            hook,
		Notifier:        deps.Notifier,
		OnSecurityError: deps.OnSecurityError,
	}, logger.With("component", "router"), deps.Metrics)

	return c
}

// Start opens the live connection and starts dispatching. It is idempotent:
// with a connection open it only schedules onReady.
func (c *Client) Start(ctx context.Context, onReady func()) error {
	var err error
	c.startOnce.Do(func() {
		err = c.router.Start(ctx)
	})
	if err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	return c.manager.Start(ctx, onReady)
}

// Stop closes the connection and disables auto-restart until the next Start.
func (c *Client) Stop(onDone func()) {
	c.manager.Stop(onDone)
}

// Restart reconnects with a fresh URI after deferBy (zero uses the default).
func (c *Client) Restart(reason string, deferBy time.Duration) {
	c.manager.Restart(reason, deferBy)
}

// IsReady reports whether the live connection is open.
func (c *Client) IsReady() bool {
	return c.manager.IsReady()
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Register subscribes handler to scopeKey ("Service" or "Service#Object").
func (c *Client) Register(scopeKey string, handler registry.Handler, identity string) {
	c.registry.Register(scopeKey, handler, identity)
}

// Unregister removes the first subscription in scopeKey with identity.
func (c *Client) Unregister(scopeKey, identity string) {
	c.registry.Unregister(scopeKey, identity)
}

// Send routes req to the live channel or returns its fallback.
func (c *Client) Send(req request.Request) (request.Outcome, error) {
	return c.facade.Send(req)
}

// Call is Send with options; the default verb is GET.
func (c *Client) Call(service, object string, opts ...request.Option) (request.Outcome, error) {
	return c.facade.Call(service, object, opts...)
}

// Do sends req and executes the fallback, if any, over HTTP.
func (c *Client) Do(ctx context.Context, req request.Request) (Response, error) {
	out, err := c.facade.Send(req)
	if err != nil {
		return Response{}, err
	}
	if out.Live {
		return Response{Outcome: out}, nil
	}
	if c.executor == nil {
		return Response{Outcome: out}, ErrNoExecutor
	}

	resp, err := c.executor.Execute(ctx, out.Fallback)
	if err != nil {
		return Response{Outcome: out}, err
	}
	return Response{Outcome: out, HTTP: resp}, nil
}

// Close stops the connection, drains the dispatcher and waits for in-flight
// status refreshes. The client cannot be restarted afterwards.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.manager.Close()
		if stopErr := c.router.Stop(ctx); stopErr != nil {
			err = stopErr
		}
		if c.refresher != nil {
			if waitErr := c.refresher.Wait(ctx); waitErr != nil && err == nil {
				err = waitErr
			}
		}
	})
	return err
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	s := Stats{
		Connection: c.manager.Stats(),
		Queue:      c.manager.Frames().Stats(),
		Router:     c.router.Stats(),
		Scopes:     c.registry.Scopes(),
	}
	if c.refresher != nil {
		s.Presence = c.refresher.Stats()
	}
	return s
}
