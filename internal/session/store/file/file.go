// Package file persists the token pair as a small JSON document on disk.
// Every process pointed at the same path shares the session; changes made by
// other processes are picked up by polling.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"portal/internal/platform/logger"
	"portal/internal/platform/metrics"
	"portal/internal/session/models"
	"portal/internal/session/store"
)

const (
	backendName         = "file"
	defaultPollInterval = time.Second
	fileMode            = 0o600
)

type document struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Store is a file-backed token store.
type Store struct {
	path         string
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	lastSeen models.TokenPair
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often Watch re-reads the file.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store at path. The parent directory is created with 0700.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &Store{
		path:         path,
		pollInterval: defaultPollInterval,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ store.TokenStore = (*Store)(nil)

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(_ context.Context) (models.TokenPair, error) {
	defer metrics.ObserveStoreOp(backendName, "load", time.Now())
	return s.read()
}

func (s *Store) Save(_ context.Context, pair models.TokenPair) error {
	defer metrics.ObserveStoreOp(backendName, "save", time.Now())

	raw, err := json.Marshal(document{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeAtomic(raw); err != nil {
		return err
	}
	s.lastSeen = pair
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	defer metrics.ObserveStoreOp(backendName, "clear", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	s.lastSeen = models.TokenPair{}
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) (func(), error) {
	current, err := s.read()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastSeen = current
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if change, ok := s.poll(); ok {
					fn(change)
				}
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

// poll compares the file with the last content this store wrote or saw. The
// read happens under the lock so a concurrent Save is never mistaken for a
// foreign write.
func (s *Store) poll() (store.Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.read()
	if err != nil {
		s.logger.Warn("token file poll failed", "error", err, "path", s.path)
		return store.Change{}, false
	}
	prev := s.lastSeen
	if pair == prev {
		return store.Change{}, false
	}
	s.lastSeen = pair

	var keys []string
	if pair.AccessToken != prev.AccessToken {
		keys = append(keys, store.KeyAccessToken)
	}
	if pair.RefreshToken != prev.RefreshToken {
		keys = append(keys, store.KeyRefreshToken)
	}
	op := store.OpSet
	if !pair.Present() {
		op = store.OpRemove
	}
	return store.Change{Op: op, Keys: keys}, true
}

func (s *Store) read() (models.TokenPair, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.TokenPair{}, nil
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("read token file: %w", err)
	}
	if len(raw) == 0 {
		return models.TokenPair{}, nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode token file: %w", err)
	}
	return models.TokenPair{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken}, nil
}

func (s *Store) writeAtomic(raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
