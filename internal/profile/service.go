// Package profile serves the signed-in user's account: view, edit and delete.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"portal/internal/accounts"
	"portal/internal/audit"
	jwttoken "portal/internal/jwt_token"
	"portal/internal/session"
	dErrors "portal/pkg/domain-errors"
)

// Session is what the service needs from the session manager.
type Session interface {
	CurrentAccessToken() (string, bool)
	Claims() (*jwttoken.Claims, bool)
	Logout(ctx context.Context) error
}

// Accounts is the profile subset of the accounts API.
type Accounts interface {
	Me(ctx context.Context, access string) (*accounts.User, error)
	UpdateMe(ctx context.Context, access string, update accounts.UserUpdate) (*accounts.User, error)
	DeleteUser(ctx context.Context, access string, userID int64) error
}

// AuditPublisher records account deletions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	session  Session
	accounts Accounts
	auditor  AuditPublisher
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func New(sess Session, api Accounts, opts ...Option) (*Service, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if api == nil {
		return nil, errors.New("accounts client is required")
	}
	s := &Service{session: sess, accounts: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get loads the current user's profile.
func (s *Service) Get(ctx context.Context) (*accounts.User, error) {
	token, ok := s.session.CurrentAccessToken()
	if !ok {
		return nil, session.ErrNoSession()
	}
	user, err := s.accounts.Me(ctx, token)
	if err != nil {
		return nil, session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return user, nil
}

// Update applies a partial edit and returns the stored profile.
func (s *Service) Update(ctx context.Context, update accounts.UserUpdate) (*accounts.User, error) {
	token, ok := s.session.CurrentAccessToken()
	if !ok {
		return nil, session.ErrNoSession()
	}
	user, err := s.accounts.UpdateMe(ctx, token, update)
	if err != nil {
		return nil, session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return user, nil
}

// DeleteAccount removes the account and ends the session. A zero userID
// means the user the access token was issued to.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	token, ok := s.session.CurrentAccessToken()
	if !ok {
		return session.ErrNoSession()
	}
	if userID == 0 {
		claims, ok := s.session.Claims()
		if !ok || claims.UserID == 0 {
			return dErrors.New(dErrors.CodeBadRequest, "user id is required")
		}
		userID = claims.UserID
	}

	if err := s.accounts.DeleteUser(ctx, token, userID); err != nil {
		return session.EndOnRejection(ctx, s.session, s.logger, err)
	}

	s.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	if s.auditor != nil {
		event := audit.Event{Action: audit.ActionAccountDeleted, Subject: strconv.FormatInt(userID, 10), Origin: "local"}
		if err := s.auditor.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to record account deletion", "error", err)
		}
	}
	if err := s.session.Logout(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to end session after account deletion", "error", err)
	}
	return nil
}
