// Package redis shares the token pair between contexts through Redis. Writes
// go through MULTI/EXEC together with a PUBLISH on the namespace's change
// channel, so watchers never see a notification without the data behind it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"portal/internal/platform/logger"
	"portal/internal/platform/metrics"
	"portal/pkg/platform/sentinel"
	"portal/internal/session/models"
	"portal/internal/session/store"
)

const backendName = "redis"

// Store is a Redis-backed token store.
type Store struct {
	client    *redis.Client
	namespace string
	origin    string
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for undecodable broadcasts.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Redis token store for namespace.
func New(client *redis.Client, namespace string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	s := &Store{
		client:    client,
		namespace: namespace,
		origin:    uuid.NewString(),
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

var _ store.TokenStore = (*Store)(nil)

func (s *Store) key(name string) string {
	return s.namespace + ":" + name
}

// Channel is the pub/sub channel carrying change broadcasts for the namespace.
func (s *Store) Channel() string {
	return s.namespace + ":changes"
}

func (s *Store) Load(ctx context.Context) (models.TokenPair, error) {
	defer metrics.ObserveStoreOp(backendName, "load", time.Now())

	vals, err := s.client.MGet(ctx, s.key(store.KeyAccessToken), s.key(store.KeyRefreshToken)).Result()
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("load tokens: %w: %w", sentinel.ErrUnavailable, err)
	}
	var pair models.TokenPair
	if v, ok := vals[0].(string); ok {
		pair.AccessToken = v
	}
	if v, ok := vals[1].(string); ok {
		pair.RefreshToken = v
	}
	return pair, nil
}

func (s *Store) Save(ctx context.Context, pair models.TokenPair) error {
	defer metrics.ObserveStoreOp(backendName, "save", time.Now())

	msg, err := store.Message{Origin: s.origin, Namespace: s.namespace, Op: store.OpSet, Keys: store.Keys}.Encode()
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(store.KeyAccessToken), pair.AccessToken, 0)
		pipe.Set(ctx, s.key(store.KeyRefreshToken), pair.RefreshToken, 0)
		pipe.Publish(ctx, s.Channel(), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tokens: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	defer metrics.ObserveStoreOp(backendName, "clear", time.Now())

	msg, err := store.Message{Origin: s.origin, Namespace: s.namespace, Op: store.OpRemove, Keys: store.Keys}.Encode()
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(store.KeyAccessToken), s.key(store.KeyRefreshToken))
		pipe.Publish(ctx, s.Channel(), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear tokens: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.Channel())
	// Wait for the subscription confirmation so no broadcast is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.Channel(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				decoded, err := store.DecodeMessage(m.Payload)
				if err != nil {
					s.logger.Warn("ignoring undecodable token broadcast", "error", err, "channel", m.Channel)
					continue
				}
				if change, ok := decoded.Relevant(s.origin, s.namespace); ok {
					fn(change)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}
