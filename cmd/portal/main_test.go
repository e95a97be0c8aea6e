package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"portal/internal/platform/config"
	"portal/internal/platform/logger"
	"portal/pkg/testutil"
)

// fakeBackend serves the accounts and todo endpoints the CLI touches.
type fakeBackend struct {
	mu      sync.Mutex
	access  string
	valid   bool
	logouts int
	todos   []map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return &fakeBackend{access: testutil.AccessToken(t, 7, time.Hour), valid: true}
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/contas/api/token/", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "alice" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": f.access, "refresh": "refresh-1"})
	})
	r.Post("/contas/api/token/verify/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := f.valid
		f.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	r.Post("/contas/api/token/logout/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusResetContent)
	})
	r.Post("/contas/api/users/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 8, "username": body["username"], "email": body["email"]})
	})
	r.Get("/todolist/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.access {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.todos)
	})
	r.Post("/todolist/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		body["id"] = len(f.todos) + 1
		body["completed"] = false
		f.todos = append(f.todos, body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

type CLISuite struct {
	suite.Suite
	api    *fakeBackend
	server *httptest.Server
	cfg    config.Config
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.api = newFakeBackend(s.T())
	s.server = httptest.NewServer(s.api.router())
	s.T().Cleanup(s.server.Close)

	s.cfg = config.Config{
		API: config.APIConfig{
			BaseURL:       s.server.URL,
			Timeout:       2 * time.Second,
			VerifyTimeout: time.Second,
			LogoutTimeout: time.Second,
		},
		Store: config.StoreConfig{
			Backend:      config.StoreFile,
			Path:         filepath.Join(s.T().TempDir(), "session.json"),
			Namespace:    "portal",
			PollInterval: 50 * time.Millisecond,
		},
		Audit: config.AuditConfig{BufferSize: 16},
	}
}

func (s *CLISuite) exec(stdin string, args ...string) (int, string) {
	var out bytes.Buffer
	code := run(context.Background(), s.cfg, logger.Discard(), args, strings.NewReader(stdin), &out)
	return code, out.String()
}

// =============================================================================
// Session commands
// =============================================================================

func (s *CLISuite) TestLoginPersistsAcrossInvocations() {
	code, out := s.exec("secret\n", "login", "-username", "alice")
	s.Require().Equal(0, code, out)
	s.Contains(out, "signed in")

	code, out = s.exec("", "status")
	s.Require().Equal(0, code, out)
	s.Contains(out, "state: authenticated")
	s.Contains(out, "user id: 7")
}

func (s *CLISuite) TestLoginWithWrongPassword() {
	code, out := s.exec("", "login", "-username", "alice", "-password", "nope")
	s.Equal(1, code)
	s.Contains(out, "error:")

	_, err := os.Stat(s.cfg.Store.Path)
	s.True(err == nil || os.IsNotExist(err))

	code, out = s.exec("", "status")
	s.Require().Equal(0, code)
	s.Contains(out, "state: unauthenticated")
}

func (s *CLISuite) TestRejectedTokenIsForgotten() {
	code, _ := s.exec("", "login", "-username", "alice", "-password", "secret")
	s.Require().Equal(0, code)

	s.api.mu.Lock()
	s.api.valid = false
	s.api.mu.Unlock()

	code, out := s.exec("", "status")
	s.Require().Equal(0, code)
	s.Contains(out, "state: unauthenticated")
	s.Contains(out, "signed out")

	// the file no longer carries the pair, so a valid API does not bring it back
	s.api.mu.Lock()
	s.api.valid = true
	s.api.mu.Unlock()
	_, out = s.exec("", "status")
	s.Contains(out, "state: unauthenticated")
}

func (s *CLISuite) TestLogoutRevokesAndClears() {
	code, _ := s.exec("", "login", "-username", "alice", "-password", "secret")
	s.Require().Equal(0, code)

	code, out := s.exec("", "logout")
	s.Require().Equal(0, code, out)
	s.Contains(out, "signed out")
	s.api.mu.Lock()
	s.Equal(1, s.api.logouts)
	s.api.mu.Unlock()

	_, out = s.exec("", "status")
	s.Contains(out, "state: unauthenticated")
}

// =============================================================================
// Consumers
// =============================================================================

func (s *CLISuite) TestTodoAddAndList() {
	code, _ := s.exec("", "login", "-username", "alice", "-password", "secret")
	s.Require().Equal(0, code)

	code, out := s.exec("", "todo", "add", "-title", "buy milk", "-description", "2 litres")
	s.Require().Equal(0, code, out)
	s.Contains(out, "added 1")

	code, out = s.exec("", "todo", "list")
	s.Require().Equal(0, code, out)
	s.Contains(out, "[ ] 1 buy milk - 2 litres")
}

func (s *CLISuite) TestTodoWithoutSession() {
	code, out := s.exec("", "todo", "list")
	s.Equal(1, code)
	s.Contains(out, "not authenticated")
}

func (s *CLISuite) TestTodoRejectsBadID() {
	code, _ := s.exec("", "login", "-username", "alice", "-password", "secret")
	s.Require().Equal(0, code)

	code, out := s.exec("", "todo", "done", "abc")
	s.Equal(1, code)
	s.Contains(out, "invalid todo id")
}

func (s *CLISuite) TestRegisterValidatesLocally() {
	code, out := s.exec("", "register", "-username", "bob", "-email", "not-an-email", "-password", "longenough")
	s.Equal(1, code)
	s.Contains(out, "email")
}

func (s *CLISuite) TestRegister() {
	code, out := s.exec("", "register", "-username", "bob", "-email", "bob@example.com", "-password", "longenough")
	s.Require().Equal(0, code, out)
	s.Contains(out, "created user 8 (bob)")
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), config.Config{}, logger.Discard(), nil, strings.NewReader(""), &out)
	assert.Equal(t, 2, code)
	assert.Contains(t, out.String(), "usage: portal")

	out.Reset()
	cfg := config.Config{
		API:   config.APIConfig{BaseURL: "http://127.0.0.1:1"},
		Store: config.StoreConfig{Backend: config.StoreMemory},
		Audit: config.AuditConfig{BufferSize: 4},
	}
	code = run(context.Background(), cfg, logger.Discard(), []string{"frobnicate"}, strings.NewReader(""), &out)
	assert.Equal(t, 2, code)
	assert.Contains(t, out.String(), `unknown command "frobnicate"`)
}
