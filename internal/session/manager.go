// Package session owns the client-side authentication lifecycle: the token
// pair, its start-up verification, login and logout, and the change
// notifications other components derive their state from.
package session

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	jwttoken "portal/internal/jwt_token"
	"portal/internal/platform/metrics"
	"portal/internal/session/models"
	"portal/internal/session/store"
)

const (
	defaultVerifyTimeout = 5 * time.Second
	defaultLogoutTimeout = 5 * time.Second
)

// Manager is the single owner of a context's token pair. It is safe for
// concurrent use. Network calls and subscriber dispatch happen outside its
// lock; store writes happen under it so memory and storage never disagree.
type Manager struct {
	store     store.TokenStore
	remote    Remote
	navigator Navigator
	auditor   AuditPublisher
	logger    *slog.Logger

	verifyTimeout time.Duration
	logoutTimeout time.Duration
	now           func() time.Time

	mu    sync.Mutex
	state models.State
	pair  models.TokenPair
	// generation changes on every login, logout and external change so a
	// verification that started earlier can tell its answer is stale.
	generation  uint64
	started     bool
	stopWatch   func()
	subs        []*subscription
	nextSubID   uint64
	pending     []models.ChangeEvent
	dispatching bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNavigator sets the receiver of navigation signals.
func WithNavigator(nav Navigator) Option {
	return func(m *Manager) {
		if nav != nil {
			m.navigator = nav
		}
	}
}

// WithAuditPublisher records lifecycle events to p.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Manager) {
		m.auditor = p
	}
}

// WithVerifyTimeout bounds the start-up verification call.
func WithVerifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.verifyTimeout = d
		}
	}
}

// WithLogoutTimeout bounds the best-effort remote logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds a manager in the Initializing state. Call Start to load and
// verify the stored pair.
func New(tokens store.TokenStore, remote Remote, opts ...Option) (*Manager, error) {
	if tokens == nil {
		return nil, errors.New("token store is required")
	}
	if remote == nil {
		return nil, errors.New("remote is required")
	}
	m := &Manager{
		store:         tokens,
		remote:        remote,
		navigator:     noopNavigator{},
		logger:        slog.Default(),
		verifyTimeout: defaultVerifyTimeout,
		logoutTimeout: defaultLogoutTimeout,
		now:           time.Now,
		state:         models.StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Snapshot returns the current derived state.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Snapshot{State: m.state}
}

// IsAuthenticated reports whether a verified or freshly issued pair is held.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().Authenticated()
}

// IsVerifying is true until the start-up check has settled.
func (m *Manager) IsVerifying() bool {
	return m.Snapshot().Verifying()
}

// CurrentAccessToken returns the bearer token to attach to API calls. There
// is none unless the session is authenticated.
func (m *Manager) CurrentAccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.StateAuthenticated || m.pair.AccessToken == "" {
		return "", false
	}
	return m.pair.AccessToken, true
}

// Claims returns the unverified claims of the current access token.
func (m *Manager) Claims() (*jwttoken.Claims, bool) {
	token, ok := m.CurrentAccessToken()
	if !ok {
		return nil, false
	}
	claims, err := jwttoken.Inspect(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Close stops observing other contexts. It must not be called from a
// subscriber.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// transitionLocked moves to state and queues the matching event. Callers
// hold m.mu and call dispatch after releasing it.
func (m *Manager) transitionLocked(state models.State, origin models.Origin) {
	m.state = state
	m.pending = append(m.pending, models.ChangeEvent{
		Snapshot: models.Snapshot{State: state},
		Origin:   origin,
		At:       m.now(),
	})
	metrics.ObserveTransition(state.String(), string(origin))
}

func (m *Manager) snapshotLocked() models.Snapshot {
	return models.Snapshot{State: m.state}
}

func subjectOf(access string) string {
	if access == "" {
		return ""
	}
	id, err := jwttoken.UserIDOf(access)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
