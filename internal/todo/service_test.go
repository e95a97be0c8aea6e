package todo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"portal/internal/accounts"
	"portal/internal/platform/httpclient"
	"portal/internal/session"
	"portal/internal/session/store/memory"
	dErrors "portal/pkg/domain-errors"
)

// fakeTodoAPI serves an in-memory list owned by one bearer token, plus the
// logout endpoint the session manager calls.
type fakeTodoAPI struct {
	mu      sync.Mutex
	owner   string
	items   []Item
	nextID  int64
	logouts int
	// createStatus overrides the 201 of a successful create when set.
	createStatus int
}

func (f *fakeTodoAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+f.owner {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
		return false
	}
	return true
}

func (f *fakeTodoAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/todolist/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.items)
	})
	r.Post("/todolist/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var in NewItem
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		item := Item{ID: f.nextID, Title: in.Title, Description: in.Description}
		f.items = append(f.items, item)
		status := http.StatusCreated
		if f.createStatus != 0 {
			status = f.createStatus
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(item)
	})
	r.Patch("/todolist/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		var in struct {
			Completed bool `json:"completed"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.items {
			if f.items[i].ID == id {
				f.items[i].Completed = in.Completed
				_ = json.NewEncoder(w).Encode(f.items[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	r.Delete("/todolist/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.items {
			if f.items[i].ID == id {
				f.items = append(f.items[:i], f.items[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/contas/api/token/logout/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusResetContent)
	})
	return r
}

type ServiceSuite struct {
	suite.Suite
	api     *fakeTodoAPI
	server  *httptest.Server
	manager *session.Manager
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.api = &fakeTodoAPI{owner: "acc"}
	s.server = httptest.NewServer(s.api.router())

	hc, err := httpclient.New(s.server.URL)
	s.Require().NoError(err)
	accountsClient, err := accounts.New(hc)
	s.Require().NoError(err)
	todoClient, err := NewClient(hc)
	s.Require().NoError(err)

	s.manager, err = session.New(memory.New(memory.NewBackend()), accountsClient)
	s.Require().NoError(err)
	_, err = s.manager.Start(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Login(s.ctx, "acc", "ref"))

	s.service, err = NewService(s.manager, todoClient)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.manager.Close()
	s.server.Close()
}

// =============================================================================
// CRUD
// =============================================================================

func (s *ServiceSuite) TestCreateListCompleteDelete() {
	item, err := s.service.Create(s.ctx, "  buy milk ", "2 liters")
	s.Require().NoError(err)
	s.Equal("buy milk", item.Title)

	items, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.False(items[0].Completed)

	done, err := s.service.SetCompleted(s.ctx, item.ID, true)
	s.Require().NoError(err)
	s.True(done.Completed)

	undone, err := s.service.SetCompleted(s.ctx, item.ID, false)
	s.Require().NoError(err)
	s.False(undone.Completed)

	s.Require().NoError(s.service.Delete(s.ctx, item.ID))
	items, err = s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ServiceSuite) TestCreateRequiresTitle() {
	_, err := s.service.Create(s.ctx, "   ", "no title")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestCreateExpects201() {
	s.api.createStatus = http.StatusOK
	_, err := s.service.Create(s.ctx, "title", "")
	s.Require().Error(err)
	s.True(s.manager.IsAuthenticated())
}

func (s *ServiceSuite) TestDeleteMissingItem() {
	err := s.service.Delete(s.ctx, 42)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.True(s.manager.IsAuthenticated())
}

func (s *ServiceSuite) TestInvalidIDs() {
	_, err := s.service.SetCompleted(s.ctx, 0, true)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.True(dErrors.HasCode(s.service.Delete(s.ctx, -1), dErrors.CodeBadRequest))
}

// =============================================================================
// Session policy
// =============================================================================

func (s *ServiceSuite) TestRejectedTokenEndsSession() {
	s.api.mu.Lock()
	s.api.owner = "someone-else"
	s.api.mu.Unlock()

	_, err := s.service.List(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.False(s.manager.IsAuthenticated())

	s.api.mu.Lock()
	defer s.api.mu.Unlock()
	s.Equal(1, s.api.logouts, "remote logout attempted once")
}

func (s *ServiceSuite) TestNoSessionMakesNoRequest() {
	s.Require().NoError(s.manager.Logout(s.ctx))

	_, err := s.service.List(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(nil, &Client{})
	require.Error(t, err)
	_, err = NewClient(nil)
	require.Error(t, err)
}
