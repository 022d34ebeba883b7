// Package httpserver serves the loopback login surface: the page the identity
// provider returns to, the password form and the header of a signed-in user.
package httpserver

import (
	"context"
	"crypto/tls"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ojt-portal/portal-session/internal/bootstrap"
	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/navigation"
	"github.com/ojt-portal/portal-session/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*.js
var staticFS embed.FS

// Version is reported by the health endpoint.
var Version = "dev"

// Deps are the session components the server renders.
type Deps struct {
	Login    *bootstrap.Bootstrapper
	Surface  *PageSurface
	Menu     *navigation.Menu
	Store    *session.Store
	Messages *i18n.Catalog
}

// Server is the HTTP server for the login surface and health checks
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	mux        *http.ServeMux
	templates  *template.Template
	limiter    *loginLimiter

	// mountMu serializes remounts across concurrent page loads.
	mountMu sync.Mutex
	login   *bootstrap.Bootstrapper
	surface *PageSurface
	menu    *navigation.Menu
	store   *session.Store
	msgs    *i18n.Catalog
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Messages == nil {
		deps.Messages = i18n.New(cfg.UI.Lang)
	}
	templates, err := template.New("pages").
		Funcs(template.FuncMap{"t": deps.Messages.T}).
		ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		templates: templates,
		limiter:   newLoginLimiter(cfg.Portal.LoginPath),
		login:     deps.Login,
		surface:   deps.Surface,
		menu:      deps.Menu,
		store:     deps.Store,
		msgs:      deps.Messages,
	}

	loginPath := cfg.Portal.LoginPath
	s.mux.HandleFunc("GET "+loginPath, s.handleLoginPage)
	s.mux.HandleFunc("POST "+loginPath, s.handleSubmit)
	s.mux.HandleFunc("GET "+loginPath+"/fragment", s.handleFragment)
	s.mux.HandleFunc("GET "+loginPath+"/google", s.handleGoogle)
	s.mux.HandleFunc("GET "+loginPath+"/state", s.handleState)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.Handle("GET /static/", http.FileServerFS(staticFS))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	home := cfg.Portal.HomePath
	if home == "/" {
		home = "/{$}"
	}
	s.mux.HandleFunc("GET "+home, s.handleHome)

	handler := recoverPanics(s.mux)
	handler = s.limiter.middleware(handler)
	handler = securityHeaders(handler)
	handler = accessLog(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server",
		"addr", s.cfg.Listen.HTTP,
		"tls", s.cfg.TLS.Enabled,
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and unmounts the login
// surface.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	if s.login != nil {
		s.login.Unmount()
	}
	return s.httpServer.Shutdown(ctx)
}
