// Package postgres keeps the token pair in a Postgres table and uses
// LISTEN/NOTIFY to tell other contexts about changes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portal/internal/platform/logger"
	"portal/internal/platform/metrics"
	"portal/pkg/platform/sentinel"
	"portal/internal/session/models"
	"portal/internal/session/store"
)

const (
	backendName = "postgres"

	// NotifyChannel carries change broadcasts for every namespace.
	NotifyChannel = "portal_session_tokens"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_tokens (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

// Store is a Postgres-backed token store.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
	origin    string
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the notification listener.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Postgres token store for namespace.
func New(pool *pgxpool.Pool, namespace string, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres pool is required")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	s := &Store{
		pool:      pool,
		namespace: namespace,
		origin:    uuid.NewString(),
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ store.TokenStore = (*Store)(nil)

// EnsureSchema creates the token table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create session_tokens table: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (models.TokenPair, error) {
	defer metrics.ObserveStoreOp(backendName, "load", time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM session_tokens WHERE namespace = $1 AND key = ANY($2)`,
		s.namespace, store.Keys)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("load tokens: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var pair models.TokenPair
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.TokenPair{}, fmt.Errorf("scan token row: %w", err)
		}
		switch key {
		case store.KeyAccessToken:
			pair.AccessToken = value
		case store.KeyRefreshToken:
			pair.RefreshToken = value
		}
	}
	if err := rows.Err(); err != nil {
		return models.TokenPair{}, fmt.Errorf("iterate token rows: %w", err)
	}
	return pair, nil
}

func (s *Store) Save(ctx context.Context, pair models.TokenPair) error {
	defer metrics.ObserveStoreOp(backendName, "save", time.Now())

	return s.inTx(ctx, store.OpSet, func(tx pgx.Tx) error {
		for key, value := range map[string]string{
			store.KeyAccessToken:  pair.AccessToken,
			store.KeyRefreshToken: pair.RefreshToken,
		} {
			_, err := tx.Exec(ctx, `
				INSERT INTO session_tokens (namespace, key, value, updated_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				s.namespace, key, value)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	defer metrics.ObserveStoreOp(backendName, "clear", time.Now())

	return s.inTx(ctx, store.OpRemove, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM session_tokens WHERE namespace = $1 AND key = ANY($2)`,
			s.namespace, store.Keys)
		if err != nil {
			return fmt.Errorf("delete tokens: %w", err)
		}
		return nil
	})
}

// inTx runs fn and the change notification in one transaction; NOTIFY is only
// delivered on commit.
func (s *Store) inTx(ctx context.Context, op store.Op, fn func(pgx.Tx) error) error {
	payload, err := store.Message{Origin: s.origin, Namespace: s.namespace, Op: op, Keys: store.Keys}.Encode()
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, payload); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	// The connection keeps LISTEN active for its lifetime, so take it out of the pool.
	listener := conn.Hijack()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = listener.Close(context.Background()) }()
		for {
			n, err := listener.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("token notification listener stopped", "error", err)
				}
				return
			}
			msg, err := store.DecodeMessage(n.Payload)
			if err != nil {
				s.logger.Warn("ignoring undecodable token notification", "error", err)
				continue
			}
			if change, ok := msg.Relevant(s.origin, s.namespace); ok {
				fn(change)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
