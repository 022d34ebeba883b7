package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/bootstrap"
	"github.com/ojt-portal/portal-session/internal/callback"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/logsanitize"
)

// handleLoginPage mounts the login surface for the requested URL. A
// query-string callback is applied here; a fragment callback never reaches
// the server and is forwarded by login.js to handleFragment.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.mount(w, r, requestURL(r))
}

// handleFragment rebuilds the provider return URL from a forwarded fragment.
func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	frag := r.URL.Query().Get("f")
	raw := requestOrigin(r) + s.cfg.Portal.LoginPath
	if frag != "" {
		raw += "#" + frag
	}
	s.mount(w, r, raw)
}

func (s *Server) mount(w http.ResponseWriter, r *http.Request, rawURL string) {
	s.mountMu.Lock()
	s.login.Unmount()
	s.surface.Reset()
	// The config load outlives the request.
	res, err := s.login.Mount(context.WithoutCancel(r.Context()), rawURL)
	s.mountMu.Unlock()

	slog.Debug("login surface mounted", // #nosec G706 -- URL redacted and sanitized
		"url", logsanitize.RedactURL(rawURL),
		"outcome", res.Outcome.Kind.String(),
		"state", res.State.String(),
	)
	if err != nil {
		slog.Error("login surface mount failed", "error", err)
		s.renderLogin(w, r, http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if res.Outcome.Kind == callback.KindFailure {
		status = http.StatusUnauthorized
	}
	s.renderLogin(w, r, status)
}

// handleSubmit accepts the password form.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, s.msgs.T(i18n.KeyLoginFailed))
		return
	}

	out, err := s.login.Submit(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case err == nil:
		slog.Info("password login succeeded", "role", out.Session.Role)
		s.renderLogin(w, r, http.StatusOK)
	case errors.Is(err, autherr.ErrNotInteractive), errors.Is(err, bootstrap.ErrUnmounted):
		slog.Debug("password login rejected", "state", s.login.State().String(), "error", err)
		s.renderError(w, http.StatusConflict, s.msgs.T(i18n.KeyLoginFailed))
	default:
		kind := autherr.KindOf(err)
		level := slog.LevelInfo
		if kind == autherr.KindInput {
			level = slog.LevelDebug
		}
		slog.Log(r.Context(), level, "password login failed", "kind", kind)
		slog.Debug("password login failure detail", "error", logsanitize.Sanitize(err.Error()))
		s.renderLogin(w, r, http.StatusBadRequest)
	}
}

// handleGoogle redirects to the provider's authorization endpoint.
func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.login.GoogleLoginURL(r.Context())
	switch {
	case err == nil:
		slog.Info("redirecting to provider")
		http.Redirect(w, r, authURL, http.StatusFound)
	case errors.Is(err, autherr.ErrNotInteractive), errors.Is(err, bootstrap.ErrUnmounted):
		http.Redirect(w, r, s.cfg.Portal.LoginPath, http.StatusSeeOther)
	default:
		if kind := autherr.KindOf(err); kind == autherr.KindInput {
			slog.Debug("provider login unavailable", "kind", kind, "error", err)
		} else {
			slog.Warn("provider login unavailable", "kind", kind, "error", err)
		}
		s.renderLogin(w, r, http.StatusServiceUnavailable)
	}
}

// handleLogout clears the stored session for every instance.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.menu.Logout(); err != nil {
		slog.Error("logout failed", "error", err)
		s.renderError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("signed out")
	http.Redirect(w, r, s.cfg.Portal.LoginPath, http.StatusSeeOther)
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func requestURL(r *http.Request) string {
	return requestOrigin(r) + r.URL.RequestURI()
}
