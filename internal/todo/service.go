// Package todo manages the signed-in user's todo list. Items belong to
// whoever holds the bearer token; the service only attaches it.
package todo

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"portal/internal/session"
	dErrors "portal/pkg/domain-errors"
)

// Session is what the service needs from the session manager.
type Session interface {
	CurrentAccessToken() (string, bool)
	Logout(ctx context.Context) error
}

// API is the todo list endpoint set.
type API interface {
	List(ctx context.Context, access string) ([]Item, error)
	Create(ctx context.Context, access string, item NewItem) (*Item, error)
	SetCompleted(ctx context.Context, access string, id int64, completed bool) (*Item, error)
	Delete(ctx context.Context, access string, id int64) error
}

type Service struct {
	session Session
	api     API
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(sess Session, api API, opts ...Option) (*Service, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if api == nil {
		return nil, errors.New("todo api is required")
	}
	s := &Service{session: sess, api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) token() (string, error) {
	token, ok := s.session.CurrentAccessToken()
	if !ok {
		return "", session.ErrNoSession()
	}
	return token, nil
}

func (s *Service) List(ctx context.Context) ([]Item, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	items, err := s.api.List(ctx, token)
	if err != nil {
		return nil, session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return items, nil
}

// Create adds an item. The title is required.
func (s *Service) Create(ctx context.Context, title, description string) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.WithFields("invalid todo", map[string][]string{"title": {"title is required"}})
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	item, err := s.api.Create(ctx, token, NewItem{Title: title, Description: description})
	if err != nil {
		return nil, session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return item, nil
}

func (s *Service) SetCompleted(ctx context.Context, id int64, completed bool) (*Item, error) {
	if id <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "todo id is required")
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	item, err := s.api.SetCompleted(ctx, token, id, completed)
	if err != nil {
		return nil, session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return item, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "todo id is required")
	}
	token, err := s.token()
	if err != nil {
		return err
	}
	if err := s.api.Delete(ctx, token, id); err != nil {
		return session.EndOnRejection(ctx, s.session, s.logger, err)
	}
	return nil
}
