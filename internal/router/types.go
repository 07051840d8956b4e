package router

import (
	"context"
	"errors"

	"github.com/rickgao/rtu-client/internal/model"
)

// Errors
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrMissingType       = errors.New("envelope missing Type")
)

// DefaultSecurityTopic is the bus topic security exceptions are published on.
const DefaultSecurityTopic = "rtu.security"

// RouterConfig holds configuration for the Dispatcher.
type RouterConfig struct {
	DeviceID      string   // Own device id; envelopes excluding it are dropped
	ForwardScopes []string // Object scopes also published on the local bus
	SecurityTopic string   // Bus topic for security exceptions
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		SecurityTopic: DefaultSecurityTopic,
	}
}

// Stopper hard-stops the connection. Implemented by *connection.Manager.
type Stopper interface {
	Stop(onDone func())
}

// TickHook runs on every scheduler tick before Scheduler subscribers.
type TickHook interface {
	OnTick(ctx context.Context, msg model.Message)
}

// TickHookFunc adapts a function to TickHook.
type TickHookFunc func(ctx context.Context, msg model.Message)

// OnTick calls f.
func (f TickHookFunc) OnTick(ctx context.Context, msg model.Message) {
	f(ctx, msg)
}

// Notifier publishes local notifications. Implemented by *bus.Bus.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Hooks are optional collaborators of the Dispatcher.
type Hooks struct {
	Tick            TickHook
	Notifier        Notifier
	OnSecurityError func(msg model.Message)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	FramesReceived  int64
	MessagesRouted  int64
	Heartbeats      int64
	SchedulerTicks  int64
	Excluded        int64
	SecurityStops   int64
	ParseErrors     int64
	NotifyErrors    int64
	HandlersInvoked int64
}
