package connection

import (
	"errors"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// State is the lifecycle state of the managed connection.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateClosing
	StateClosed
	StateError
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame is a raw inbound message handed from the manager to the dispatcher.
type Frame struct {
	Data       []byte
	Generation uint64 // Connection generation that received the frame
	ReceivedAt time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full connection URI including token and x-request
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // Dial handshake timeout
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1000,
	}
}

// ClientFactory creates the transport for one connection generation.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Endpoint       string        // Base endpoint, e.g. https://gateway.example.com
	LiveEnabled    bool          // False forces degraded (fallback-only) mode
	RestartDelay   time.Duration // Deferral before a restart reconnects
	ReadyDelay     time.Duration // onReady delay when already Ready
	HandshakeDelay time.Duration // onReady delay while the handshake is in flight
	QueueSize      int           // Initial capacity of the inbound frame queue
	Client         ClientConfig  // Template for each connection; URL is filled per generation
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		LiveEnabled:    true,
		RestartDelay:   123 * time.Millisecond,
		ReadyDelay:     25 * time.Millisecond,
		HandshakeDelay: 500 * time.Millisecond,
		QueueSize:      256,
		Client:         DefaultClientConfig(),
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State      State
	Generation uint64
	Connects   int64
	Restarts   int64
	QueueDepth int
}
