package presence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/rtu-client/internal/api"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/request"
)

// Sender issues façade calls. Implemented by *request.Facade.
type Sender interface {
	Call(service, object string, opts ...request.Option) (request.Outcome, error)
}

// Executor performs fallback descriptions. Implemented by *api.Client.
type Executor interface {
	Execute(ctx context.Context, fb *request.Fallback) (*api.Response, error)
}

// Call is one status-refresh request.
type Call struct {
	Service string
	Object  string
	Verb    request.Verb
}

// Config holds refresher configuration.
type Config struct {
	Calls       []Call
	Concurrency int           // Max concurrent fallback executions (default: 2)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Calls: []Call{
			{Service: "Users", Object: "Status", Verb: request.VerbGet},
			{Service: "Users", Object: "Session", Verb: request.VerbGet},
		},
		Concurrency: 2,
		Timeout:     10 * time.Second,
	}
}

// Stats contains refresher statistics.
type Stats struct {
	Ticks     int64
	Skipped   int64
	Live      int64
	Fallbacks int64
	Errors    int64
}

// Refresher issues the status-refresh calls on scheduler ticks.
type Refresher struct {
	cfg      Config
	sender   Sender
	executor Executor
	logger   *slog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	ticks     atomic.Int64
	skipped   atomic.Int64
	live      atomic.Int64
	fallbacks atomic.Int64
	errors    atomic.Int64
}

// New creates a Refresher. A nil executor drops fallbacks after logging them.
func New(cfg Config, sender Sender, executor Executor, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Refresher{
		cfg:      cfg,
		sender:   sender,
		executor: executor,
		logger:   logger,
	}
}

// OnTick sends the configured calls and hands fallbacks to a background worker
// set. It never blocks on network I/O.
func (r *Refresher) OnTick(ctx context.Context, msg model.Message) {
	r.ticks.Add(1)

	if !r.busy.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		r.logger.Debug("status refresh still running, skipping tick")
		return
	}

	var pending []*request.Fallback
	for _, call := range r.cfg.Calls {
		out, err := r.sender.Call(call.Service, call.Object, request.WithVerb(call.Verb))
		if err != nil {
			r.errors.Add(1)
			r.logger.Warn("status refresh call rejected",
				"service", call.Service,
				"object", call.Object,
				"error", err,
			)
			continue
		}
		if out.Live {
			r.live.Add(1)
			continue
		}
		pending = append(pending, out.Fallback)
	}

	if len(pending) == 0 || r.executor == nil {
		if len(pending) > 0 {
			r.logger.Debug("no HTTP executor, dropping status fallbacks", "count", len(pending))
		}
		r.busy.Store(false)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)
		r.executeAll(ctx, pending)
	}()
}

// Wait blocks until in-flight fallbacks finish or ctx is done.
func (r *Refresher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (r *Refresher) Stats() Stats {
	return Stats{
		Ticks:     r.ticks.Load(),
		Skipped:   r.skipped.Load(),
		Live:      r.live.Load(),
		Fallbacks: r.fallbacks.Load(),
		Errors:    r.errors.Load(),
	}
}

// executeAll runs fallbacks with bounded concurrency.
func (r *Refresher) executeAll(ctx context.Context, fallbacks []*request.Fallback) {
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for _, fb := range fallbacks {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()

			if _, err := r.executor.Execute(reqCtx, fb); err != nil {
				r.errors.Add(1)
				r.logger.Warn("status refresh failed",
					"method", fb.Method,
					"path", fb.Path,
					"error", err,
				)
				return nil
			}
			r.fallbacks.Add(1)
			return nil
		})
	}
	g.Wait()

	r.logger.Debug("status refresh complete",
		"requests", len(fallbacks),
		"duration", time.Since(start),
	)
}
