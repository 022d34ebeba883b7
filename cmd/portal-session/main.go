package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/daemon"
	"github.com/ojt-portal/portal-session/internal/httpserver"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

var rootCmd = &cobra.Command{
	Use:   "portal-session",
	Short: "OJT portal sign-in and session client",
	Long: `Client-side identity and session management for the OJT portal.

The binary keeps the signed-in user in a profile shared by every instance
(file, redis or in-memory), applies identity provider callbacks, submits
password logins to the portal backend and serves a loopback login page.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the loopback login surface",
	Long: `Start the HTTP login surface.

The server:
  - Applies provider callbacks returned to the login page
  - Accepts password logins and redirects to Google sign-in
  - Follows sign-ins and sign-outs made by other instances`,
	RunE: runServe,
}

// overrideExitCode is set by subcommands (check-config, login) so main() can
// call os.Exit() after cobra finishes.  This avoids calling os.Exit() inside
// RunE which would bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without starting the server.

Also resolves the Google client settings from the build environment and the
remote app config document.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file (defaults plus PORTAL_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	addSessionCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if overrideExitCode < 0 {
			overrideExitCode = ExitError
		}
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the configuration, applies the logging flags and sets up
// logging. A failure marks the process for ExitConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		overrideExitCode = ExitConfig
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// runServe starts the daemon
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting portal session daemon",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)
	httpserver.Version = version

	ctx := commandContext(cmd)
	d, err := daemon.New(ctx, cfg, nil)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(ctx)
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	out := outWriter(cmd)
	fmt.Fprintf(out, "portal-session version %s\n", version)
	fmt.Fprintf(out, "  Commit:     %s\n", commit)
	fmt.Fprintf(out, "  Build date: %s\n", buildDate)
	fmt.Fprintf(out, "  Go version: %s\n", getGoVersion())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	out := outWriter(cmd)
	fmt.Fprintf(out, "Checking configuration: %s\n\n", orDefault(configFile, "(defaults)"))

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(errWriter(cmd), "❌ Configuration validation failed:\n")
		fmt.Fprintf(errWriter(cmd), "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}
	red := cfg.Redact()

	fmt.Fprintln(out, "✅ Configuration is valid")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration summary:")
	fmt.Fprintf(out, "  API Base URL:    %s\n", red.Portal.APIBaseURL)
	fmt.Fprintf(out, "  Login Path:      %s\n", red.Portal.LoginPath)
	fmt.Fprintf(out, "  Home Path:       %s\n", red.Portal.HomePath)
	fmt.Fprintf(out, "  App Config:      %s\n", orDefault(red.Portal.ConfigURL, "(none)"))
	fmt.Fprintf(out, "  Profile:         %s\n", red.Profile.Backend)
	switch red.Profile.Backend {
	case "redis":
		fmt.Fprintf(out, "  Redis:           %s db=%d prefix=%s password=%s\n",
			red.Profile.Redis.Addr, red.Profile.Redis.DB, red.Profile.Redis.Prefix,
			orDefault(red.Profile.Redis.Password, "[NOT SET]"))
	case "file":
		fmt.Fprintf(out, "  Profile Dir:     %s\n", red.Profile.Dir)
	}
	fmt.Fprintf(out, "  OAuth Endpoint:  %s\n", orDefault(red.OAuth.Issuer, red.OAuth.AuthURL))
	fmt.Fprintf(out, "  Scopes:          %v\n", red.OAuth.Scopes)
	fmt.Fprintf(out, "  HTTP Listen:     %s\n", red.Listen.HTTP)
	fmt.Fprintf(out, "  Language:        %s\n", red.UI.Lang)
	fmt.Fprintf(out, "  Redirect Delay:  %s\n", red.UI.RedirectDelay())
	fmt.Fprintf(out, "  Log Level:       %s\n", red.Log.Level)
	fmt.Fprintf(out, "  Log Format:      %s\n", red.Log.Format)
	fmt.Fprintf(out, "  TLS Enabled:     %v\n", red.TLS.Enabled)

	be, err := config.LoadBuildEnv(cfg.Portal.EnvFile)
	if err != nil {
		fmt.Fprintf(errWriter(cmd), "❌ Build environment invalid: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), 5*time.Second)
	defer cancel()
	remote, remoteErr := config.NewAppConfigLoader(cfg.Portal.ConfigURL, nil).Load(ctx)
	settings := config.Resolve(be, remote)

	fmt.Fprintln(out)
	if remoteErr != nil {
		fmt.Fprintf(out, "  Remote Config:   unavailable (%v)\n", errors.Unwrap(remoteErr))
	} else {
		fmt.Fprintln(out, "  Remote Config:   loaded")
	}
	fmt.Fprintf(out, "  Redirect URI:    %s\n", settings.RedirectURI)
	if settings.ClientID != "" {
		fmt.Fprintf(out, "  Client ID:       %s\n", settings.ClientID)
		fmt.Fprintln(out, "\n✅ Google sign-in available")
	} else {
		fmt.Fprintln(out, "  Client ID:       [NOT SET]")
		fmt.Fprintln(out, "\n⚠️  Google sign-in unavailable; password login only")
	}

	return nil
}

// getGoVersion returns the Go version used to build the binary
func getGoVersion() string {
	return runtime.Version()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
