package httptransport

import (
	"context"
	"net/http"
	"time"

	"portal/pkg/platform/httputil"
)

type sessionResponse struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Verifying     bool   `json:"verifying"`
	UserID        int64  `json:"user_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	resp := sessionResponse{
		State:         snap.State.String(),
		Authenticated: snap.Authenticated(),
		Verifying:     snap.Verifying(),
	}
	if claims, ok := h.session.Claims(); ok {
		resp.UserID = claims.UserID
		if exp := claims.ExpiresAt(); !exp.IsZero() {
			resp.ExpiresAt = exp.UTC().Format(time.RFC3339)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	httputil.WriteJSON(w, status, body)
}
