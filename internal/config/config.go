package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Portal  PortalConfig  `yaml:"portal"`
	Profile ProfileConfig `yaml:"profile"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Listen  ListenConfig  `yaml:"listen"`
	TLS     TLSConfig     `yaml:"tls"`
	UI      UIConfig      `yaml:"ui"`
	Log     LogConfig     `yaml:"log"`
}

// PortalConfig locates the backend and the login surface
type PortalConfig struct {
	APIBaseURL string `yaml:"api_base_url"` // REST backend, e.g. http://localhost:5220/api
	HomePath   string `yaml:"home_path"`    // where a signed-in user lands
	LoginPath  string `yaml:"login_path"`   // the login surface itself
	ConfigURL  string `yaml:"config_url"`   // remote app config document (URL or file path)
	EnvFile    string `yaml:"env_file"`     // build-time overrides (.env)
}

// ProfileConfig selects the durable storage shared by client instances
type ProfileConfig struct {
	Backend string      `yaml:"backend"` // file, memory, redis
	Dir     string      `yaml:"dir"`     // file backend directory
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis profile backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// OAuthConfig defines the identity provider endpoint. Client id and redirect
// URI are not set here; see Resolve.
type OAuthConfig struct {
	Issuer  string   `yaml:"issuer"`   // optional OIDC issuer for endpoint discovery
	AuthURL string   `yaml:"auth_url"` // static authorization endpoint
	Scopes  []string `yaml:"scopes"`
}

// ListenConfig defines where the loopback login surface listens
type ListenConfig struct {
	HTTP string `yaml:"http"`
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// UIConfig defines presentation settings
type UIConfig struct {
	Lang            string `yaml:"lang"`
	RedirectDelayMS int    `yaml:"redirect_delay_ms"` // pause before post-login navigation
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RedirectDelay returns the post-login navigation delay.
func (u UIConfig) RedirectDelay() time.Duration {
	return time.Duration(u.RedirectDelayMS) * time.Millisecond
}

// Load reads and parses the configuration file. An empty path means no file:
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			APIBaseURL: "http://localhost:5220/api",
			HomePath:   "/",
			LoginPath:  "/login",
			EnvFile:    ".env",
		},
		Profile: ProfileConfig{
			Backend: "file",
			Dir:     defaultProfileDir(),
			Redis: RedisConfig{
				Prefix: "portal:profile:default",
			},
		},
		OAuth: OAuthConfig{
			AuthURL: "https://accounts.google.com/o/oauth2/v2/auth",
			Scopes:  []string{"openid", "email", "profile"},
		},
		Listen: ListenConfig{
			HTTP: "127.0.0.1:5173",
		},
		UI: UIConfig{
			Lang:            "en",
			RedirectDelayMS: 1200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultProfileDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".portal-session"
	}
	return filepath.Join(dir, "portal-session")
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Portal overrides
	if v := os.Getenv("PORTAL_API_BASE_URL"); v != "" {
		c.Portal.APIBaseURL = v
	}
	if v := os.Getenv("PORTAL_CONFIG_URL"); v != "" {
		c.Portal.ConfigURL = v
	}

	// Profile overrides
	if v := os.Getenv("PORTAL_PROFILE_BACKEND"); v != "" {
		c.Profile.Backend = v
	}
	if v := os.Getenv("PORTAL_PROFILE_DIR"); v != "" {
		c.Profile.Dir = v
	}
	if v := os.Getenv("PORTAL_REDIS_ADDR"); v != "" {
		c.Profile.Redis.Addr = v
	}
	if v := os.Getenv("PORTAL_REDIS_PASSWORD"); v != "" {
		c.Profile.Redis.Password = v
	}

	// OAuth overrides
	if v := os.Getenv("PORTAL_OAUTH_ISSUER"); v != "" {
		c.OAuth.Issuer = v
	}

	// UI overrides
	if v := os.Getenv("PORTAL_UI_LANG"); v != "" {
		c.UI.Lang = v
	}
	if v := os.Getenv("PORTAL_REDIRECT_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.UI.RedirectDelayMS = ms
		}
	}

	// Log overrides
	if v := os.Getenv("PORTAL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORTAL_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Listen overrides
	if v := os.Getenv("PORTAL_LISTEN_HTTP"); v != "" {
		c.Listen.HTTP = v
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Validate portal config
	if !isHTTPURL(c.Portal.APIBaseURL) {
		return fmt.Errorf("portal.api_base_url must be a valid HTTP(S) URL")
	}
	if !strings.HasPrefix(c.Portal.HomePath, "/") {
		return fmt.Errorf("portal.home_path must start with '/'")
	}
	if !strings.HasPrefix(c.Portal.LoginPath, "/") {
		return fmt.Errorf("portal.login_path must start with '/'")
	}
	if c.Portal.LoginPath == c.Portal.HomePath {
		return fmt.Errorf("portal.login_path must differ from portal.home_path")
	}

	// Validate profile config
	switch c.Profile.Backend {
	case "file":
		if c.Profile.Dir == "" {
			return fmt.Errorf("profile.dir is required for the file backend")
		}
	case "memory":
	case "redis":
		if c.Profile.Redis.Addr == "" {
			return fmt.Errorf("profile.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("profile.backend must be one of: file, memory, redis")
	}

	// Validate OAuth config
	if c.OAuth.Issuer != "" && !isHTTPURL(c.OAuth.Issuer) {
		return fmt.Errorf("oauth.issuer must be a valid HTTP(S) URL")
	}
	if c.OAuth.Issuer == "" && !isHTTPURL(c.OAuth.AuthURL) {
		return fmt.Errorf("oauth.auth_url must be a valid HTTP(S) URL")
	}
	hasOpenID := false
	for _, scope := range c.OAuth.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("oauth.scopes must include 'openid'")
	}

	// Validate UI config
	if c.UI.RedirectDelayMS < 0 {
		return fmt.Errorf("ui.redirect_delay_ms must not be negative")
	}
	if c.UI.RedirectDelayMS > 10000 {
		return fmt.Errorf("ui.redirect_delay_ms should not exceed 10000")
	}

	// Validate TLS config
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		// Check if files exist
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	// Validate listen config
	if c.Listen.HTTP == "" {
		return fmt.Errorf("listen.http is required")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a deep-enough copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if c.OAuth.Scopes != nil {
		redacted.OAuth.Scopes = make([]string, len(c.OAuth.Scopes))
		copy(redacted.OAuth.Scopes, c.OAuth.Scopes)
	}
	if redacted.Profile.Redis.Password != "" {
		redacted.Profile.Redis.Password = "[REDACTED]"
	}
	return &redacted
}
