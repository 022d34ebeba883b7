// Package daemon orchestrates the components of the portal session service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ojt-portal/portal-session/internal/bootstrap"
	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/httpserver"
	"github.com/ojt-portal/portal-session/internal/navigation"
	"github.com/ojt-portal/portal-session/internal/oidc"
	"github.com/ojt-portal/portal-session/internal/session"
	"github.com/ojt-portal/portal-session/internal/storage"
)

var _ bootstrap.URLBuilder = (*oidc.Provider)(nil)

// Daemon represents the main daemon process that coordinates all components.
type Daemon struct {
	cfg        *config.Config
	comps      *Components
	menu       *navigation.Menu
	login      *bootstrap.Bootstrapper
	httpServer *httpserver.Server

	stopRoleLog func()
}

// New creates a new daemon with all components initialized. st may be nil,
// in which case the configured profile is opened.
func New(ctx context.Context, cfg *config.Config, st storage.Storage) (*Daemon, error) {
	comps, err := Build(ctx, cfg, st)
	if err != nil {
		return nil, err
	}

	menu := navigation.New(comps.Broadcaster, comps.Store, comps.Messages)
	surface := httpserver.NewPageSurface()

	opts := bootstrap.Options{
		Store:         comps.Store,
		Interpreter:   comps.Interpreter,
		Submitter:     comps.Submitter,
		Config:        comps.AppConfig,
		BuildEnv:      comps.BuildEnv,
		Messages:      comps.Messages,
		HomePath:      cfg.Portal.HomePath,
		LoginPath:     cfg.Portal.LoginPath,
		RedirectDelay: cfg.UI.RedirectDelay(),
	}
	// A nil *oidc.Provider must not become a non-nil interface.
	if comps.Provider != nil {
		opts.Provider = comps.Provider
	}
	login := bootstrap.New(surface, opts)

	httpServer, err := httpserver.NewServer(cfg, httpserver.Deps{
		Login:    login,
		Surface:  surface,
		Menu:     menu,
		Store:    comps.Store,
		Messages: comps.Messages,
	})
	if err != nil {
		menu.Close()
		_ = comps.Close()
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	slog.Info("HTTP server initialized",
		"listen", cfg.Listen.HTTP,
		"tls", cfg.TLS.Enabled,
	)

	d := &Daemon{
		cfg:        cfg,
		comps:      comps,
		menu:       menu,
		login:      login,
		httpServer: httpServer,
	}
	d.stopRoleLog = comps.Broadcaster.Subscribe(logRole)
	return d, nil
}

func logRole(role session.Role) {
	slog.Info("session role changed", "role", role)
}

// Components returns the wired session components.
func (d *Daemon) Components() *Components { return d.comps }

// Handler returns the login surface's HTTP handler.
func (d *Daemon) Handler() http.Handler { return d.httpServer.Handler() }

// Run serves the login surface until ctx is cancelled or SIGINT/SIGTERM is
// received.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting portal session daemon")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("error stopping HTTP server", "error", err)
		}
		return nil
	})

	err := g.Wait()
	d.close()
	if err != nil {
		return err
	}

	slog.Info("daemon shutdown complete")
	return nil
}

func (d *Daemon) close() {
	if d.stopRoleLog != nil {
		d.stopRoleLog()
	}
	d.menu.Close()
	if err := d.comps.Close(); err != nil {
		slog.Error("error closing profile", "error", err)
	}
}
