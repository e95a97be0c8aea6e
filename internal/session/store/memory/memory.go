// Package memory is an in-process token store. A Backend plays the role of
// per-origin storage shared by several contexts; each Store is one context's
// view of it, with its own origin, so writes made through one Store are
// observed by watchers of the others.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"portal/internal/platform/metrics"
	"portal/internal/session/models"
	"portal/internal/session/store"
)

const backendName = "memory"

// Backend holds the shared key/value data and the registered watchers.
type Backend struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[*watcher]struct{}
}

// NewBackend creates empty shared storage.
func NewBackend() *Backend {
	return &Backend{
		values:   make(map[string]string),
		watchers: make(map[*watcher]struct{}),
	}
}

// Get reads a raw key.
func (b *Backend) Get(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Set writes a raw key as a foreign context would. Every watcher is notified.
func (b *Backend) Set(key, value string) {
	b.apply("", store.OpSet, map[string]string{key: value})
}

// Delete removes a raw key as a foreign context would. Every watcher is notified.
func (b *Backend) Delete(key string) {
	b.apply("", store.OpRemove, map[string]string{key: ""})
}

func (b *Backend) apply(origin string, op store.Op, kv map[string]string) {
	keys := make([]string, 0, len(kv))

	b.mu.Lock()
	for k, v := range kv {
		if op == store.OpSet {
			b.values[k] = v
		} else {
			delete(b.values, k)
		}
		keys = append(keys, k)
	}
	targets := make([]*watcher, 0, len(b.watchers))
	for w := range b.watchers {
		if w.origin != origin {
			targets = append(targets, w)
		}
	}
	b.mu.Unlock()

	owned := store.Owned(keys)
	if len(owned) == 0 {
		return
	}
	for _, w := range targets {
		w.enqueue(store.Change{Op: op, Keys: owned})
	}
}

func (b *Backend) register(w *watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers[w] = struct{}{}
}

func (b *Backend) unregister(w *watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, w)
}

// Store is one context's view of a Backend.
type Store struct {
	backend *Backend
	origin  string
}

// New opens a new context on backend.
func New(backend *Backend) *Store {
	return &Store{backend: backend, origin: uuid.NewString()}
}

var _ store.TokenStore = (*Store)(nil)

func (s *Store) Load(_ context.Context) (models.TokenPair, error) {
	defer metrics.ObserveStoreOp(backendName, "load", time.Now())
	access, _ := s.backend.Get(store.KeyAccessToken)
	refresh, _ := s.backend.Get(store.KeyRefreshToken)
	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Store) Save(_ context.Context, pair models.TokenPair) error {
	defer metrics.ObserveStoreOp(backendName, "save", time.Now())
	s.backend.apply(s.origin, store.OpSet, map[string]string{
		store.KeyAccessToken:  pair.AccessToken,
		store.KeyRefreshToken: pair.RefreshToken,
	})
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	defer metrics.ObserveStoreOp(backendName, "clear", time.Now())
	s.backend.apply(s.origin, store.OpRemove, map[string]string{
		store.KeyAccessToken:  "",
		store.KeyRefreshToken: "",
	})
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) (func(), error) {
	w := newWatcher(s.origin, fn)
	s.backend.register(w)
	go w.run(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.backend.unregister(w)
			w.stop()
		})
	}, nil
}

// watcher delivers changes on its own goroutine, like storage events that
// fire after the writer has moved on.
type watcher struct {
	origin string
	fn     func(store.Change)

	mu      sync.Mutex
	pending []store.Change
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
}

func newWatcher(origin string, fn func(store.Change)) *watcher {
	return &watcher{
		origin: origin,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (w *watcher) enqueue(c store.Change) {
	w.mu.Lock()
	w.pending = append(w.pending, c)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.exited)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.wake:
		}
		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()
		for _, c := range batch {
			w.fn(c)
		}
	}
}

func (w *watcher) stop() {
	close(w.done)
	<-w.exited
}
