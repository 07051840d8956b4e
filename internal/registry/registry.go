package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
)

// Handler receives a decoded message. It runs synchronously on the dispatch goroutine.
type Handler func(msg model.Message)

// Subscription is one registered handler.
type Subscription struct {
	ScopeKey string
	Handler  Handler
	Identity string
}

// Registry holds subscriptions by scope key.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string][]Subscription
}

// New creates an empty Registry.
func New(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		metrics: m,
		entries: make(map[string][]Subscription),
	}
}

// Register appends handler to the scope's list. Duplicate identities are kept as
// independent entries and all of them fire.
func (r *Registry) Register(scopeKey string, handler Handler, identity string) {
	if handler == nil {
		return
	}

	r.mu.Lock()
	r.entries[scopeKey] = append(r.entries[scopeKey], Subscription{
		ScopeKey: scopeKey,
		Handler:  handler,
		Identity: identity,
	})
	r.mu.Unlock()
}

// Unregister removes the first entry in scopeKey whose identity matches.
// Unknown scopes, empty identities and misses are silent no-ops.
func (r *Registry) Unregister(scopeKey, identity string) {
	if identity == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.entries[scopeKey]
	if !ok {
		return
	}

	for i, s := range subs {
		if s.Identity != identity {
			continue
		}
		// Build a new slice so snapshots handed to in-flight dispatches stay intact.
		next := make([]Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.entries, scopeKey)
		} else {
			r.entries[scopeKey] = next
		}
		return
	}
}

// Dispatch invokes every handler of scopeKey in registration order and returns how
// many ran. An empty scope drops the message.
func (r *Registry) Dispatch(scopeKey string, msg model.Message) int {
	r.mu.RLock()
	subs := r.entries[scopeKey]
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.logger.Debug("no subscribers for scope", "scope", scopeKey, "topic", msg.Topic)
		r.metrics.IncDropped(metrics.ReasonNoSubscribers)
		return 0
	}

	for _, s := range subs {
		r.invoke(s, msg)
	}
	return len(subs)
}

// invoke runs one handler, isolating panics.
func (r *Registry) invoke(s Subscription, msg model.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.IncHandlerPanic()
			r.logger.Error("subscriber panicked",
				"scope", s.ScopeKey,
				"identity", s.Identity,
				"topic", msg.Topic,
				"error", fmt.Sprint(rec),
			)
		}
	}()
	s.Handler(msg)
}

// Count returns the number of subscriptions under scopeKey.
func (r *Registry) Count(scopeKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[scopeKey])
}

// Scopes returns the registered scope keys, sorted.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scopes := make([]string, 0, len(r.entries))
	for k := range r.entries {
		scopes = append(scopes, k)
	}
	sort.Strings(scopes)
	return scopes
}
