package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/registry"
	"github.com/rickgao/rtu-client/internal/topic"
)

// Router decodes inbound frames and dispatches them to the Handler Registry.
type Router interface {
	// Start begins consuming the frame queue on a single goroutine.
	Start(ctx context.Context) error

	// Stop closes the frame queue and waits for the loop to finish.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg      RouterConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	frames   *connection.Queue[connection.Frame]
	registry *registry.Registry
	stopper  Stopper
	hooks    Hooks

	forward map[string]struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats RouterStats
}

// NewRouter creates a new Dispatcher reading frames produced by the Connection Manager.
func NewRouter(
	cfg RouterConfig,
	frames *connection.Queue[connection.Frame],
	reg *registry.Registry,
	stopper Stopper,
	hooks Hooks,
	logger *slog.Logger,
	m *metrics.Metrics,
) Router {
	return newRouter(cfg, frames, reg, stopper, hooks, logger, m)
}

func newRouter(
	cfg RouterConfig,
	frames *connection.Queue[connection.Frame],
	reg *registry.Registry,
	stopper Stopper,
	hooks Hooks,
	logger *slog.Logger,
	m *metrics.Metrics,
) *router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SecurityTopic == "" {
		cfg.SecurityTopic = DefaultSecurityTopic
	}

	forward := make(map[string]struct{}, len(cfg.ForwardScopes))
	for _, scope := range cfg.ForwardScopes {
		forward[scope] = struct{}{}
	}

	return &router{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		frames:   frames,
		registry: reg,
		stopper:  stopper,
		hooks:    hooks,
		forward:  forward,
		ctx:      context.Background(),
	}
}

// Start begins dispatching.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.dispatchLoop()

	r.logger.Info("dispatcher started",
		"device_id", r.cfg.DeviceID,
		"forward_scopes", len(r.forward),
	)

	return nil
}

// Stop gracefully shuts down the dispatcher. Frames still queued are drained first.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping dispatcher")

	r.frames.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		r.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		r.logger.Warn("dispatcher stop timed out")
		err = ctx.Err()
	}

	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// dispatchLoop is the single event loop; handlers run on it synchronously.
func (r *router) dispatchLoop() {
	defer r.wg.Done()

	for {
		frame, ok := r.frames.Pop()
		if !ok {
			r.logger.Debug("frame queue closed")
			return
		}
		r.route(frame)
	}
}

// route decodes and dispatches a single frame.
func (r *router) route(frame connection.Frame) {
	r.count(func(s *RouterStats) { s.FramesReceived++ })

	receivedAt := frame.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	msg, err := Decode(frame.Data, receivedAt)
	if err != nil {
		r.logger.Warn("dropping inbound frame", "error", err, "bytes", len(frame.Data))
		r.metrics.IncParseError()
		r.count(func(s *RouterStats) { s.ParseErrors++ })
		return
	}
	r.metrics.IncEnvelope(msg.Kind.String())

	switch msg.Kind {
	case model.KindHeartbeat:
		r.logger.Debug("heartbeat", "service", msg.Key.Service)
		r.count(func(s *RouterStats) { s.Heartbeats++ })
		return

	case model.KindSchedulerTick:
		r.count(func(s *RouterStats) { s.SchedulerTicks++ })
		if r.hooks.Tick != nil {
			r.hooks.Tick.OnTick(r.ctx, msg)
		}
		if r.registry.Count(topic.SchedulerScope) > 0 {
			r.dispatch(topic.SchedulerScope, msg)
		}
		return
	}

	if r.cfg.DeviceID != "" && msg.ExcludedDeviceID == r.cfg.DeviceID {
		r.logger.Debug("dropping echo of own action", "topic", msg.Topic)
		r.metrics.IncDropped(metrics.ReasonExcluded)
		r.count(func(s *RouterStats) { s.Excluded++ })
		return
	}

	if isSecurityError(msg) {
		r.handleSecurityError(msg)
		return
	}

	r.dispatch(msg.Key.ServiceScope(), msg)

	// Service-only topics have no object scope.
	if msg.Key.Object == "" {
		return
	}
	r.dispatch(msg.Key.ObjectScope(), msg)

	if _, ok := r.forward[msg.Key.ObjectScope()]; ok {
		r.notify(msg.Key.ObjectScope(), msg)
	}
}

// handleSecurityError hard-stops the connection and surfaces the error to the application.
func (r *router) handleSecurityError(msg model.Message) {
	r.logger.Warn("security exception, stopping connection",
		"type", msg.Error.Type,
		"message", msg.Error.Message,
		"correlation_id", msg.Error.CorrelationID,
	)
	r.metrics.IncSecurityStop()
	r.count(func(s *RouterStats) { s.SecurityStops++ })

	if r.stopper != nil {
		r.stopper.Stop(nil)
	}

	r.dispatch(topic.SecurityErrorScope, msg)

	if r.hooks.OnSecurityError != nil {
		r.hooks.OnSecurityError(msg)
	}

	r.notify(r.cfg.SecurityTopic, msg)
}

func (r *router) dispatch(scope string, msg model.Message) {
	n := r.registry.Dispatch(scope, msg)
	if n > 0 {
		r.count(func(s *RouterStats) {
			s.MessagesRouted++
			s.HandlersInvoked += int64(n)
		})
	}
}

// notify publishes msg on the local bus. Failures are logged only.
func (r *router) notify(busTopic string, msg model.Message) {
	if r.hooks.Notifier == nil {
		return
	}

	payload, err := json.Marshal(model.Envelope{
		Type:             msg.Topic,
		Data:             msg.Data,
		ExcludedDeviceID: msg.ExcludedDeviceID,
		Error:            msg.Error,
	})
	if err != nil {
		r.logger.Warn("encode notification", "error", err, "topic", busTopic)
		return
	}

	if err := r.hooks.Notifier.Publish(r.ctx, busTopic, payload); err != nil {
		r.logger.Warn("publish notification", "error", err, "topic", busTopic)
		r.count(func(s *RouterStats) { s.NotifyErrors++ })
	}
}

func (r *router) count(update func(s *RouterStats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}
