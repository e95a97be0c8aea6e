package session

import (
	"context"

	"portal/internal/audit"
	"portal/internal/session/models"
)

// Remote is the part of the accounts API the manager depends on.
type Remote interface {
	// VerifyToken returns nil only when the API positively accepts token.
	VerifyToken(ctx context.Context, token string) error
	// Logout revokes refresh on the server, authenticated with access.
	Logout(ctx context.Context, access, refresh string) error
}

// Navigator receives "go to" signals after login and logout.
type Navigator interface {
	Navigate(ctx context.Context, route models.Route)
}

// AuditPublisher records session lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, models.Route) {}
