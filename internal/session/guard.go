package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rtu-client/internal/model"
)

// TokenResetter forgets the in-memory credential. Implemented by *auth.Provider.
type TokenResetter interface {
	SetToken(token string)
}

// Guard tears down local session state when the gateway rejects it.
type Guard struct {
	store    Store
	tokens   TokenResetter
	deviceID string
	timeout  time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewGuard creates a Guard for deviceID. tokens may be nil.
func NewGuard(store Store, tokens TokenResetter, deviceID string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:    store,
		tokens:   tokens,
		deviceID: deviceID,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// OnSecurityError clears the in-memory token at once and the stored session on
// a background goroutine, so the dispatcher never waits on the store. Its
// signature matches the dispatcher's security hook.
func (g *Guard) OnSecurityError(msg model.Message) {
	reason := "security exception"
	if msg.Error != nil {
		reason = msg.Error.Type
	}

	if g.tokens != nil {
		g.tokens.SetToken("")
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.clear(reason)
	}()
}

// Wait blocks until pending session clears finish or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) clear(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.store.Clear(ctx, g.deviceID, reason); err != nil {
		g.logger.Error("failed to clear session", "device_id", g.deviceID, "error", err)
		return
	}
	g.logger.Warn("session cleared", "device_id", g.deviceID, "reason", reason)
}

// Restore loads a saved token for the device. It returns "" when none exists.
func (g *Guard) Restore(ctx context.Context) (string, error) {
	s, err := g.store.Load(ctx, g.deviceID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if g.tokens != nil {
		g.tokens.SetToken(s.Token)
	}
	return s.Token, nil
}
