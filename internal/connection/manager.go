package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/rtu-client/internal/auth"
	"github.com/rickgao/rtu-client/internal/metrics"
)

// DefaultRestartReason is logged when the connection closes unexpectedly.
const DefaultRestartReason = "connection closed unexpectedly"

// MaxRestartBackoff caps the restart delay while new connections cannot be opened.
const MaxRestartBackoff = 30 * time.Second

// Manager owns the lifecycle of one gateway connection.
type Manager struct {
	cfg       ManagerConfig
	headers   auth.HeaderProvider
	newClient ClientFactory
	logger    *slog.Logger
	metrics   *metrics.Metrics

	frames *Queue[Frame]

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	client       Client
	state        State
	uri          string // Empty after Stop; disables auto-restart
	gen          uint64 // Bumped per connection; stale callbacks compare against it
	restartTimer *time.Timer
	openFailures int // Consecutive restarts that could not build a client
	connects     int64
	restarts     int64
}

// NewManager creates a Connection Manager. A nil factory puts the manager in
// degraded mode where every request takes the fallback path.
func NewManager(cfg ManagerConfig, headers auth.HeaderProvider, factory ClientFactory, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:       cfg,
		headers:   headers,
		newClient: factory,
		logger:    logger,
		metrics:   m,
		frames:    NewQueue[Frame](cfg.QueueSize),
		state:     StateInitializing,
	}
}

// Frames returns the inbound frame queue consumed by the dispatcher.
func (m *Manager) Frames() *Queue[Frame] {
	return m.frames
}

// Start opens the connection if none exists and schedules onReady.
// Calling Start while a connection exists only schedules onReady.
func (m *Manager) Start(ctx context.Context, onReady func()) error {
	m.mu.Lock()

	if m.client != nil {
		ready := m.state == StateReady
		m.mu.Unlock()
		m.scheduleReady(onReady, ready)
		return nil
	}

	if m.newClient == nil || !m.cfg.LiveEnabled {
		m.mu.Unlock()
		m.logger.Warn("live transport unavailable, requests will use the fallback path")
		m.scheduleReady(onReady, false)
		return nil
	}

	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	client, gen, err := m.openLocked(false)
	connCtx := m.ctx
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("start connection: %w", err)
	}

	go m.connect(connCtx, client, gen)
	m.scheduleReady(onReady, false)
	return nil
}

// Restart closes the current connection after deferBy and opens a new one with a
// fresh URI. A zero deferBy uses the configured default. Restart is ignored after
// Stop and while another restart is pending.
func (m *Manager) Restart(reason string, deferBy time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if deferBy <= 0 {
		deferBy = m.retryDelayLocked()
	}

	if m.uri == "" {
		m.logger.Debug("restart ignored, connection stopped", "reason", reason)
		return
	}
	if m.restartTimer != nil {
		m.logger.Debug("restart already pending", "reason", reason)
		return
	}

	m.setStateLocked(StateRestarting)
	m.restarts++
	m.metrics.IncRestart()
	m.logger.Info("restarting connection", "reason", reason, "defer", deferBy)

	m.restartTimer = time.AfterFunc(deferBy, m.fireRestart)
}

// Stop closes the connection and disables auto-restart until the next Start.
func (m *Manager) Stop(onDone func()) {
	m.mu.Lock()
	m.uri = ""
	m.gen++
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
	client := m.client
	m.client = nil
	cancel := m.cancel
	m.cancel = nil
	m.setStateLocked(StateClosing)
	m.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			m.logger.Debug("close on stop", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	if m.client == nil {
		m.setStateLocked(StateClosed)
	}
	m.mu.Unlock()

	m.logger.Info("connection stopped")

	if onDone != nil {
		onDone()
	}
}

// Close stops the connection and closes the frame queue.
func (m *Manager) Close() {
	m.Stop(nil)
	m.frames.Close()
}

// IsReady reports whether a live connection is open.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady && m.client != nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URI returns the current connection URI; empty before Start and after Stop.
func (m *Manager) URI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uri
}

// Send writes data on the live connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	client := m.client
	ready := m.state == StateReady
	m.mu.Unlock()

	if !ready || client == nil {
		return ErrNotConnected
	}
	return client.Send(data)
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		State:      m.state,
		Generation: m.gen,
		Connects:   m.connects,
		Restarts:   m.restarts,
		QueueDepth: m.frames.Len(),
	}
}

// openLocked creates the client for a new generation. Must be called with lock held.
func (m *Manager) openLocked(isRestart bool) (Client, uint64, error) {
	var headers map[string]string
	if m.headers != nil {
		h, err := m.headers.Headers()
		if err != nil {
			m.setStateLocked(StateError)
			return nil, 0, fmt.Errorf("auth headers: %w", err)
		}
		headers = h
	}

	uri, err := BuildURI(m.cfg.Endpoint, headers, isRestart)
	if err != nil {
		m.setStateLocked(StateError)
		return nil, 0, err
	}

	m.gen++
	gen := m.gen

	cfg := m.cfg.Client
	cfg.URL = uri

	m.client = m.newClient(cfg, m.logger.With("generation", gen))
	m.uri = uri
	m.setStateLocked(StateInitializing)

	m.logger.Debug("opening connection",
		"generation", gen,
		"restart", isRestart,
		"token", TokenFromURI(uri),
	)

	return m.client, gen, nil
}

// fireRestart runs when the restart deferral elapses.
func (m *Manager) fireRestart() {
	m.mu.Lock()
	m.restartTimer = nil
	if m.uri == "" {
		m.mu.Unlock()
		return
	}

	old := m.client
	m.client = nil
	client, gen, err := m.openLocked(true)
	if err != nil {
		m.openFailures++
	}
	ctx := m.ctx
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	if err != nil {
		m.logger.Error("restart failed, retrying", "error", err)
		m.Restart(err.Error(), 0)
		return
	}

	go m.connect(ctx, client, gen)
}

// connect dials and then pumps frames until the connection ends.
func (m *Manager) connect(ctx context.Context, client Client, gen uint64) {
	if err := client.Connect(ctx); err != nil {
		m.onError(gen, err)
		m.onClose(gen)
		return
	}

	if !m.onOpen(gen) {
		client.Close()
		return
	}

	for {
		select {
		case <-client.Done():
			return

		case msg := <-client.Messages():
			m.push(msg, gen)

		case err := <-client.Errors():
			// Frames read before the failure are already buffered; they go
			// ahead of the close so a final error envelope is not lost.
			m.drain(client, gen)
			if !isCloseError(err) {
				m.onError(gen, err)
			}
			m.onClose(gen)
			return
		}
	}
}

func (m *Manager) push(msg TimestampedMessage, gen uint64) {
	m.metrics.IncFrame()
	m.frames.Push(Frame{
		Data:       msg.Data,
		Generation: gen,
		ReceivedAt: msg.ReceivedAt,
	})
}

// drain forwards buffered messages without blocking.
func (m *Manager) drain(client Client, gen uint64) {
	for {
		select {
		case msg := <-client.Messages():
			m.push(msg, gen)
		default:
			return
		}
	}
}

// onOpen handles the transport open event. It returns false for stale generations.
func (m *Manager) onOpen(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.uri == "" {
		return false
	}

	m.setStateLocked(StateReady)
	m.openFailures = 0
	m.connects++
	m.metrics.IncConnect()
	m.logger.Info("connection ready", "generation", gen)
	return true
}

// onError records a transport error. It never restarts by itself.
func (m *Manager) onError(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	m.setStateLocked(StateError)
	m.logger.Warn("connection error", "generation", gen, "error", err)
}

// onClose handles the transport close event and restarts unless stopped.
func (m *Manager) onClose(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.state != StateError {
		m.setStateLocked(StateClosed)
	}
	stopped := m.uri == ""
	m.mu.Unlock()

	if stopped {
		return
	}
	m.Restart(DefaultRestartReason, 0)
}

// retryDelayLocked doubles the restart delay per consecutive open failure, up to
// MaxRestartBackoff. Must be called with lock held.
func (m *Manager) retryDelayLocked() time.Duration {
	delay := m.cfg.RestartDelay
	for i := 0; i < m.openFailures && delay < MaxRestartBackoff; i++ {
		delay *= 2
	}
	return min(delay, MaxRestartBackoff)
}

// scheduleReady fires onReady after a short delay, longer while the handshake is pending.
func (m *Manager) scheduleReady(onReady func(), ready bool) {
	if onReady == nil {
		return
	}
	delay := m.cfg.HandshakeDelay
	if ready {
		delay = m.cfg.ReadyDelay
	}
	time.AfterFunc(delay, onReady)
}

// setStateLocked records a transition. Must be called with lock held.
func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.SetState(int(s))
}

// isCloseError reports whether err is a WebSocket close rather than a failure.
func isCloseError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
