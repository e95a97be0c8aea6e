package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"portal/internal/platform/httpclient"
	dErrors "portal/pkg/domain-errors"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

// fakeAPI mimics the accounts endpoints closely enough for client tests.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded

	logoutStatus int
	verifyStatus int
	deleteStatus int
}

func (f *fakeAPI) record(r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
}

func (f *fakeAPI) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/contas/api/token/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		last := f.last()
		if last.Body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": "acc-1", "refresh": "ref-1"})
	})
	r.Post("/contas/api/token/verify/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, f.verifyStatus, map[string]string{})
	})
	r.Post("/contas/api/token/logout/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(f.logoutStatus)
	})
	r.Post("/contas/api/users/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.last().Body["username"] == "taken" {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"A user with that username already exists."}})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 7, "username": f.last().Body["username"], "email": f.last().Body["email"]})
	})
	r.Get("/contas/api/me/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Header.Get("Authorization") != "Bearer acc-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 7, "email": "ana@example.com", "username": "ana",
			"full_name": "Ana Souza", "phone_number": "", "date_of_birth": nil,
		})
	})
	r.Patch("/contas/api/me/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "username": "ana", "full_name": f.last().Body["full_name"]})
	})
	r.Delete("/contas/api/users/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(f.deleteStatus)
	})
	return r
}

type ClientSuite struct {
	suite.Suite
	api    *fakeAPI
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.api = &fakeAPI{
		logoutStatus: http.StatusResetContent,
		verifyStatus: http.StatusOK,
		deleteStatus: http.StatusNoContent,
	}
	s.server = httptest.NewServer(s.api.router())
	hc, err := httpclient.New(s.server.URL)
	s.Require().NoError(err)
	s.client, err = New(hc)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

// =============================================================================
// Tokens
// =============================================================================

func (s *ClientSuite) TestObtainToken() {
	s.Run("returns the pair on valid credentials", func() {
		resp, err := s.client.ObtainToken(s.ctx, Credentials{Username: "ana", Password: "secret"})
		s.Require().NoError(err)
		s.Equal("acc-1", resp.Pair().AccessToken)
		s.Equal("ref-1", resp.Pair().RefreshToken)
		s.Equal("ana", s.api.last().Body["username"])
	})

	s.Run("wrong password is unauthorized", func() {
		_, err := s.client.ObtainToken(s.ctx, Credentials{Username: "ana", Password: "nope"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("missing credentials fail without a request", func() {
		before := s.api.count()
		_, err := s.client.ObtainToken(s.ctx, Credentials{Username: "ana"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Equal(before, s.api.count())
	})
}

func (s *ClientSuite) TestVerifyToken() {
	s.Run("2xx is valid and sends the token in the body", func() {
		s.Require().NoError(s.client.VerifyToken(s.ctx, "acc-1"))
		last := s.api.last()
		s.Equal("acc-1", last.Body["token"])
		s.Empty(last.Auth)
	})

	s.Run("401 is a rejection", func() {
		s.api.verifyStatus = http.StatusUnauthorized
		err := s.client.VerifyToken(s.ctx, "stale")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("400 is a rejection too", func() {
		s.api.verifyStatus = http.StatusBadRequest
		err := s.client.VerifyToken(s.ctx, "garbage")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("5xx stays unavailable", func() {
		s.api.verifyStatus = http.StatusServiceUnavailable
		err := s.client.VerifyToken(s.ctx, "acc-1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.False(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ClientSuite) TestLogout() {
	s.Run("205 is success and carries bearer and refresh token", func() {
		s.Require().NoError(s.client.Logout(s.ctx, "acc-1", "ref-1"))
		last := s.api.last()
		s.Equal("Bearer acc-1", last.Auth)
		s.Equal("ref-1", last.Body["refresh_token"])
	})

	s.Run("200 is success", func() {
		s.api.logoutStatus = http.StatusOK
		s.NoError(s.client.Logout(s.ctx, "acc-1", "ref-1"))
	})

	s.Run("401 is an error", func() {
		s.api.logoutStatus = http.StatusUnauthorized
		s.Error(s.client.Logout(s.ctx, "acc-1", "ref-1"))
	})
}

// =============================================================================
// Users
// =============================================================================

func (s *ClientSuite) TestRegister() {
	s.Run("created user is decoded and optional fields omitted", func() {
		user, err := s.client.Register(s.ctx, Registration{Username: "bia", Email: "bia@example.com", Password: "pw"})
		s.Require().NoError(err)
		s.Equal(int64(7), user.ID)
		s.Equal("bia", user.Username)
		_, hasFullName := s.api.last().Body["full_name"]
		s.False(hasFullName)
	})

	s.Run("server field errors are kept", func() {
		_, err := s.client.Register(s.ctx, Registration{Username: "taken", Email: "t@example.com", Password: "pw"})
		s.Require().Error(err)
		var de *dErrors.Error
		s.Require().ErrorAs(err, &de)
		s.Equal(dErrors.CodeValidation, de.Code)
		s.Contains(de.Fields["username"][0], "already exists")
	})

	s.Run("invalid input is rejected locally", func() {
		before := s.api.count()
		_, err := s.client.Register(s.ctx, Registration{Username: "x", Email: "not-an-email", Password: "pw"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(before, s.api.count())
	})
}

func (s *ClientSuite) TestMe() {
	s.Run("returns the profile", func() {
		user, err := s.client.Me(s.ctx, "acc-1")
		s.Require().NoError(err)
		s.Equal("Ana Souza", user.FullName)
		s.Nil(user.DateOfBirth)
	})

	s.Run("foreign token is unauthorized", func() {
		_, err := s.client.Me(s.ctx, "acc-2")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ClientSuite) TestUpdateMe() {
	s.Run("sends only set fields", func() {
		name := "Ana S."
		user, err := s.client.UpdateMe(s.ctx, "acc-1", UserUpdate{FullName: &name})
		s.Require().NoError(err)
		s.Equal("Ana S.", user.FullName)
		last := s.api.last()
		s.Equal(http.MethodPatch, last.Method)
		s.Len(last.Body, 1)
	})

	s.Run("empty update is rejected locally", func() {
		_, err := s.client.UpdateMe(s.ctx, "acc-1", UserUpdate{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ClientSuite) TestDeleteUser() {
	s.Run("204 is success", func() {
		s.Require().NoError(s.client.DeleteUser(s.ctx, "acc-1", 7))
		last := s.api.last()
		s.Equal("/contas/api/users/7/", last.Path)
		s.Equal("Bearer acc-1", last.Auth)
	})

	s.Run("200 is not success", func() {
		s.api.deleteStatus = http.StatusOK
		s.Error(s.client.DeleteUser(s.ctx, "acc-1", 7))
	})

	s.Run("user id is required", func() {
		err := s.client.DeleteUser(s.ctx, "acc-1", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestNewRequiresHTTPClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestRegistrationValidate(t *testing.T) {
	tests := []struct {
		name   string
		reg    Registration
		fields []string
	}{
		{name: "valid", reg: Registration{Username: "ana", Email: "ana@example.com", Password: "pw"}},
		{name: "valid with optionals", reg: Registration{Username: "ana", Email: "ana@example.com", Password: "pw", DateOfBirth: "1990-05-01", PhoneNumber: "+5511999999999"}},
		{name: "missing everything", reg: Registration{}, fields: []string{"username", "email", "password"}},
		{name: "bad date", reg: Registration{Username: "ana", Email: "ana@example.com", Password: "pw", DateOfBirth: "01/05/1990"}, fields: []string{"date_of_birth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var de *dErrors.Error
			require.ErrorAs(t, err, &de)
			for _, f := range tt.fields {
				assert.Contains(t, de.Fields, f)
			}
		})
	}
}
