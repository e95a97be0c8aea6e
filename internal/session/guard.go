package session

import (
	"context"
	"log/slog"

	dErrors "portal/pkg/domain-errors"
)

// Ender is the part of a session a resource consumer may terminate.
type Ender interface {
	Logout(ctx context.Context) error
}

// ErrNoSession is returned by consumers that need a bearer token and have none.
func ErrNoSession() error {
	return dErrors.New(dErrors.CodeUnauthorized, "not authenticated")
}

// EndOnRejection ends the session when err says the API refused the bearer
// token (401 or 403) and returns an unauthorized error in its place. Other
// errors pass through untouched.
func EndOnRejection(ctx context.Context, s Ender, logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnauthorized) && !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return err
	}
	if logoutErr := s.Logout(ctx); logoutErr != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to end rejected session", "error", logoutErr)
	}
	return dErrors.Wrap(err, dErrors.CodeUnauthorized, "session is no longer valid")
}
