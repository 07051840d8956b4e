package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schema = `
CREATE TABLE IF NOT EXISTS rtu_sessions (
	device_id  TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS rtu_session_events (
	id         BIGSERIAL PRIMARY KEY,
	device_id  TEXT NOT NULL,
	event      TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);`

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db. Call EnsureSchema once before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the session tables if they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create session schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, deviceID string) (Session, error) {
	s := Session{DeviceID: deviceID}
	err := p.db.QueryRow(ctx,
		`SELECT token, updated_at FROM rtu_sessions WHERE device_id = $1`,
		deviceID,
	).Scan(&s.Token, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO rtu_sessions (device_id, token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at
	`, s.DeviceID, s.Token, s.UpdatedAt)
	batch.Queue(`
		INSERT INTO rtu_session_events (device_id, event, created_at)
		VALUES ($1, 'saved', $2)
	`, s.DeviceID, s.UpdatedAt)

	return p.exec(ctx, batch, "save session")
}

func (p *PostgresStore) Clear(ctx context.Context, deviceID, reason string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM rtu_sessions WHERE device_id = $1`, deviceID)
	batch.Queue(`
		INSERT INTO rtu_session_events (device_id, event, reason, created_at)
		VALUES ($1, 'cleared', $2, $3)
	`, deviceID, reason, time.Now())

	return p.exec(ctx, batch, "clear session")
}

// exec runs every statement of batch and reports the first failure.
func (p *PostgresStore) exec(ctx context.Context, batch *pgx.Batch, op string) error {
	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
