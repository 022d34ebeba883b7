package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ojt-portal/portal-session/internal/api"
	"github.com/ojt-portal/portal-session/internal/auth"
	"github.com/ojt-portal/portal-session/internal/broadcast"
	"github.com/ojt-portal/portal-session/internal/callback"
	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/oidc"
	"github.com/ojt-portal/portal-session/internal/session"
	"github.com/ojt-portal/portal-session/internal/storage"
)

// Components are the session pieces shared by the daemon and the one-shot
// CLI commands.
type Components struct {
	Storage     storage.Storage
	Store       *session.Store
	Broadcaster *broadcast.Broadcaster
	Interpreter *callback.Interpreter
	API         *api.Client
	Submitter   *auth.Submitter
	// Provider is nil when endpoint discovery failed.
	Provider  *oidc.Provider
	AppConfig *config.AppConfigLoader
	BuildEnv  config.BuildEnv
	Messages  *i18n.Catalog

	stopWatch func()
}

// Build opens the profile (unless st is given) and wires every session
// component on top of it. Changes made by other instances reach the
// Broadcaster.
func Build(ctx context.Context, cfg *config.Config, st storage.Storage) (*Components, error) {
	if st == nil {
		var err error
		st, err = storage.Open(storage.Options{
			Backend: cfg.Profile.Backend,
			Dir:     cfg.Profile.Dir,
			Redis: storage.RedisOptions{
				Addr:     cfg.Profile.Redis.Addr,
				Password: cfg.Profile.Redis.Password,
				DB:       cfg.Profile.Redis.DB,
				Prefix:   cfg.Profile.Redis.Prefix,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open profile: %w", err)
		}
	}

	slog.Info("profile opened",
		"backend", cfg.Profile.Backend,
		"instance", st.ID(),
	)

	buildEnv, err := config.LoadBuildEnv(cfg.Portal.EnvFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	msgs := i18n.New(cfg.UI.Lang)
	store := session.NewStore(st)
	bc := broadcast.New(store)

	client := api.New(api.Config{
		BaseURL: cfg.Portal.APIBaseURL,
		Tokens:  store,
	})

	c := &Components{
		Storage:     st,
		Store:       store,
		Broadcaster: bc,
		Interpreter: callback.NewDefault(msgs.T(i18n.KeyGoogleFailed)),
		API:         client,
		Submitter:   auth.NewSubmitter(client, msgs),
		AppConfig:   config.NewAppConfigLoader(cfg.Portal.ConfigURL, nil),
		BuildEnv:    buildEnv,
		Messages:    msgs,
		stopWatch:   bc.Watch(st),
	}

	pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	provider, err := oidc.NewProvider(pctx, &cfg.OAuth)
	if err != nil {
		slog.Warn("identity provider unavailable, provider login disabled", "error", err)
	} else {
		c.Provider = provider
		slog.Debug("identity provider ready", "auth_url", provider.AuthURL())
	}

	return c, nil
}

// Close stops watching the profile and closes it.
func (c *Components) Close() error {
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	return c.Storage.Close()
}
