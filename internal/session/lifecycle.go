package session

import (
	"context"

	"portal/internal/audit"
	"portal/internal/platform/metrics"
	"portal/internal/session/models"
	"portal/internal/session/store"
	dErrors "portal/pkg/domain-errors"
)

// Start loads the stored pair and settles the initial state: no pair means
// Unauthenticated, a pair is verified remotely and kept only if the API
// accepts it. Any verification failure, timeouts included, clears storage
// and sends the user to the login view. Start also begins observing other
// contexts sharing the store.
//
// Start runs once per manager; later calls return the current snapshot. It
// returns an error only when the store cannot be watched or read, in which
// case the manager is Unauthenticated.
func (m *Manager) Start(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	if m.started {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	m.started = true
	gen := m.generation
	m.mu.Unlock()

	stop, err := m.store.Watch(context.WithoutCancel(ctx), m.onStoreChange)
	if err != nil {
		return m.failStart(ctx, gen, dErrors.Wrap(err, dErrors.CodeUnavailable, "watch token store"))
	}
	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()

	pair, err := m.store.Load(ctx)
	if err != nil {
		return m.failStart(ctx, gen, dErrors.Wrap(err, dErrors.CodeInternal, "load session tokens"))
	}

	m.mu.Lock()
	if m.generation != gen {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	if !pair.Present() {
		m.pair = models.TokenPair{}
		m.transitionLocked(models.StateUnauthenticated, models.OriginLocal)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.dispatch()
		return snap, nil
	}
	m.pair = pair
	m.transitionLocked(models.StateVerifying, models.OriginLocal)
	m.mu.Unlock()
	m.dispatch()

	verifyErr := m.verify(ctx, pair.AccessToken)

	m.mu.Lock()
	if m.generation != gen {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding stale token verification", "state", snap.State.String())
		return snap, nil
	}
	if verifyErr == nil {
		m.transitionLocked(models.StateAuthenticated, models.OriginLocal)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.dispatch()
		metrics.ObserveVerification(metrics.OutcomeValid)
		m.record(ctx, audit.ActionVerified, models.OriginLocal, pair.AccessToken, "")
		return snap, nil
	}

	m.generation++
	m.pair = models.TokenPair{}
	clearErr := m.store.Clear(ctx)
	m.transitionLocked(models.StateUnauthenticated, models.OriginLocal)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.dispatch()

	outcome := metrics.OutcomeError
	if dErrors.HasCode(verifyErr, dErrors.CodeUnauthorized) {
		outcome = metrics.OutcomeRejected
	}
	metrics.ObserveVerification(outcome)
	m.logger.InfoContext(ctx, "stored session rejected", "outcome", outcome, "error", verifyErr)
	if clearErr != nil {
		m.logger.ErrorContext(ctx, "failed to clear rejected session tokens", "error", clearErr)
	}
	m.record(ctx, audit.ActionVerificationFailed, models.OriginLocal, pair.AccessToken, verifyErr.Error())
	m.navigator.Navigate(ctx, models.RouteLogin)
	return snap, nil
}

func (m *Manager) verify(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()
	if err := m.remote.VerifyToken(ctx, token); err != nil {
		return err
	}
	// A late success after the deadline does not count.
	return ctx.Err()
}

func (m *Manager) failStart(ctx context.Context, gen uint64, err error) (models.Snapshot, error) {
	m.mu.Lock()
	if m.generation == gen {
		m.pair = models.TokenPair{}
		m.transitionLocked(models.StateUnauthenticated, models.OriginLocal)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.dispatch()
	m.logger.ErrorContext(ctx, "session start failed", "error", err)
	return snap, err
}

// onStoreChange reacts to a write made by another context. A peer only
// stores a pair after a successful login, so a present pair is adopted as
// authenticated; an absent one logs this context out. Every change is
// broadcast so consumers re-check their state.
func (m *Manager) onStoreChange(change store.Change) {
	ctx := context.Background()
	metrics.IncExternalChange()

	m.mu.Lock()
	pair, err := m.store.Load(ctx)
	m.generation++
	switch {
	case err != nil:
		m.logger.ErrorContext(ctx, "failed to reload tokens after external change", "op", change.Op, "error", err)
		m.pair = models.TokenPair{}
		m.transitionLocked(models.StateUnauthenticated, models.OriginExternal)
	case !pair.Present():
		m.pair = models.TokenPair{}
		m.transitionLocked(models.StateUnauthenticated, models.OriginExternal)
	default:
		m.pair = pair
		m.transitionLocked(models.StateAuthenticated, models.OriginExternal)
	}
	access := m.pair.AccessToken
	state := m.state
	m.mu.Unlock()
	m.dispatch()

	m.logger.InfoContext(ctx, "session changed in another context",
		"op", change.Op,
		"keys", change.Keys,
		"state", state.String(),
	)
	m.record(ctx, audit.ActionExternalChange, models.OriginExternal, access, string(change.Op))
}
