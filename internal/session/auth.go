package session

import (
	"context"

	"portal/internal/audit"
	"portal/internal/platform/metrics"
	"portal/internal/session/models"
	dErrors "portal/pkg/domain-errors"
)

// Login stores a pair returned by a successful token request, marks the
// session authenticated, notifies subscribers once and navigates home.
// It fails only when the pair cannot be persisted; the state is then
// unchanged.
func (m *Manager) Login(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return dErrors.New(dErrors.CodeBadRequest, "access token is required")
	}
	pair := models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}

	m.mu.Lock()
	if err := m.store.Save(ctx, pair); err != nil {
		m.mu.Unlock()
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist session tokens")
	}
	m.generation++
	m.pair = pair
	m.transitionLocked(models.StateAuthenticated, models.OriginLocal)
	m.mu.Unlock()
	m.dispatch()

	m.logger.InfoContext(ctx, "session started")
	m.record(ctx, audit.ActionLogin, models.OriginLocal, accessToken, "")
	m.navigator.Navigate(ctx, models.RouteHome)
	return nil
}

// Logout revokes the refresh token remotely when one is held, then clears
// local state. The remote outcome is logged and never returned. On an
// already unauthenticated session only the storage clear is repeated:
// no event, no navigation.
//
// The returned error reports a failed storage clear only; the in-memory
// state is Unauthenticated regardless.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	pair := m.pair
	m.mu.Unlock()

	if pair.RefreshToken != "" {
		m.revokeRemote(ctx, pair)
	}

	m.mu.Lock()
	clearErr := m.store.Clear(ctx)
	changed := m.state != models.StateUnauthenticated
	m.generation++
	m.pair = models.TokenPair{}
	if changed {
		m.transitionLocked(models.StateUnauthenticated, models.OriginLocal)
	}
	m.mu.Unlock()

	if changed {
		m.dispatch()
		m.logger.InfoContext(ctx, "session ended")
		m.record(ctx, audit.ActionLogout, models.OriginLocal, pair.AccessToken, "")
		m.navigator.Navigate(ctx, models.RouteLogin)
	}

	if clearErr != nil {
		m.logger.ErrorContext(ctx, "failed to clear session tokens", "error", clearErr)
		return dErrors.Wrap(clearErr, dErrors.CodeInternal, "clear session tokens")
	}
	return nil
}

func (m *Manager) revokeRemote(ctx context.Context, pair models.TokenPair) {
	ctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
	defer cancel()

	if err := m.remote.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		metrics.IncRemoteLogoutFailure()
		m.logger.WarnContext(ctx, "remote logout failed", "error", err)
		m.record(ctx, audit.ActionRemoteLogoutFailed, models.OriginLocal, pair.AccessToken, err.Error())
	}
}

// record is best-effort: audit failures are logged and swallowed.
func (m *Manager) record(ctx context.Context, action audit.Action, origin models.Origin, access, reason string) {
	if m.auditor == nil {
		return
	}
	event := audit.Event{
		Action:    action,
		Subject:   subjectOf(access),
		Origin:    string(origin),
		Reason:    reason,
		Timestamp: m.now(),
	}
	if err := m.auditor.Emit(context.WithoutCancel(ctx), event); err != nil {
		m.logger.WarnContext(ctx, "failed to record audit event", "action", action, "error", err)
	}
}
