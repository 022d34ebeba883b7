package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/singleflight"

	"github.com/ojt-portal/portal-session/internal/autherr"
)

// DefaultRedirectURI is used when neither the build environment nor the
// remote document names one.
const DefaultRedirectURI = "https://localhost:7031/auth/google/callback"

// AppConfig is the remote settings document served next to the portal.
// Every field is optional.
type AppConfig struct {
	GoogleClientID    string `json:"googleClientId"`
	GoogleRedirectURI string `json:"googleRedirectUri"`
}

// BuildEnv holds values baked in at build or deploy time. They take
// precedence over the remote document.
type BuildEnv struct {
	GoogleClientID    string `env:"PORTAL_GOOGLE_CLIENT_ID"`
	GoogleRedirectURI string `env:"PORTAL_GOOGLE_REDIRECT_URI"`
}

// OAuthSettings are the resolved client settings for the outbound redirect.
type OAuthSettings struct {
	ClientID    string
	RedirectURI string
}

// LoadBuildEnv loads the given .env files, if they exist, then parses the
// process environment. Variables already set in the environment win over the
// files.
func LoadBuildEnv(files ...string) (BuildEnv, error) {
	var present []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return BuildEnv{}, fmt.Errorf("load env file: %w", err)
			}
		}
	}

	var be BuildEnv
	if err := env.Parse(&be); err != nil {
		return be, fmt.Errorf("parse build env: %w", err)
	}
	be.GoogleClientID = strings.TrimSpace(be.GoogleClientID)
	be.GoogleRedirectURI = strings.TrimSpace(be.GoogleRedirectURI)
	return be, nil
}

// Resolve merges build env, remote document and defaults. The client id has
// no default; callers must check it.
func Resolve(be BuildEnv, remote AppConfig) OAuthSettings {
	return OAuthSettings{
		ClientID:    firstNonEmpty(be.GoogleClientID, remote.GoogleClientID),
		RedirectURI: firstNonEmpty(be.GoogleRedirectURI, remote.GoogleRedirectURI, DefaultRedirectURI),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// AppConfigLoader fetches the remote document. A successful load is kept for
// the life of the process; Reload fetches again. Failed loads are not kept.
// Concurrent callers share one in-flight fetch.
type AppConfigLoader struct {
	source string
	client *http.Client
	group  singleflight.Group

	mu     sync.Mutex
	loaded bool
	cfg    AppConfig
}

// NewAppConfigLoader creates a loader for source, an HTTP(S) URL or a local
// file path. An empty source is always unavailable.
func NewAppConfigLoader(source string, client *http.Client) *AppConfigLoader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &AppConfigLoader{source: strings.TrimSpace(source), client: client}
}

// Load returns the document, fetching it on first use. Any failure wraps
// autherr.ErrConfigUnavailable.
func (l *AppConfigLoader) Load(ctx context.Context) (AppConfig, error) {
	l.mu.Lock()
	if l.loaded {
		cfg := l.cfg
		l.mu.Unlock()
		return cfg, nil
	}
	l.mu.Unlock()
	return l.Reload(ctx)
}

// Reload fetches the document again.
func (l *AppConfigLoader) Reload(ctx context.Context) (AppConfig, error) {
	v, err, _ := l.group.Do("app-config", func() (any, error) {
		cfg, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cfg = cfg
		l.loaded = true
		l.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		slog.Debug("app config unavailable", "source", l.source, "error", err)
		return AppConfig{}, autherr.New(autherr.KindConfigLoad, "", fmt.Errorf("%w: %w", autherr.ErrConfigUnavailable, err))
	}
	return v.(AppConfig), nil
}

func (l *AppConfigLoader) fetch(ctx context.Context) (AppConfig, error) {
	if l.source == "" {
		return AppConfig{}, errors.New("no config source")
	}

	var data []byte
	if isHTTPURL(l.source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
		if err != nil {
			return AppConfig{}, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Cache-Control", "no-store")
		req.Header.Set("Accept", "application/json")

		resp, err := l.client.Do(req)
		if err != nil {
			return AppConfig{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return AppConfig{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return AppConfig{}, fmt.Errorf("read body: %w", err)
		}
	} else {
		var err error
		data, err = os.ReadFile(l.source)
		if errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("%s does not exist", l.source)
		}
		if err != nil {
			return AppConfig{}, err
		}
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode app config: %w", err)
	}
	return cfg, nil
}
