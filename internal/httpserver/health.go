package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HealthResponse is the JSON response for the health check endpoint
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	Role       string `json:"role"`
	LoginState string `json:"login_state"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    Version,
		Role:       string(s.store.Role()),
		LoginState: s.login.State().String(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleState reports the page state for login.js.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.surface.Snapshot()
	st.State = s.login.State().String()
	writeJSON(w, http.StatusOK, st)
}

// handleHome greets a signed-in user and sends guests to the login page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess, ok, err := s.store.Read()
	if err != nil {
		slog.Warn("stored session unreadable", "error", err)
	}
	if !ok {
		http.Redirect(w, r, s.cfg.Portal.LoginPath, http.StatusFound)
		return
	}
	s.renderHome(w, r, sess.FullName)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort: headers/status may already be written.
		slog.Error("failed to encode JSON response", "error", err)
	}
}
