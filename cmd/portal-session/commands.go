package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/bootstrap"
	"github.com/ojt-portal/portal-session/internal/callback"
	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/daemon"
	"github.com/ojt-portal/portal-session/internal/navigation"
	"github.com/ojt-portal/portal-session/internal/session"
)

// Login flags
var (
	loginEmail         string
	loginPasswordStdin bool
	loginGoogle        bool
	loginURL           string
	whoamiRemote       bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password, or print the Google sign-in URL",
	Long: `Sign in to the portal.

With --email the password is read from stdin (--password-stdin) and posted
once to the backend. On success the session is stored in the shared profile
and every other instance follows.

With --google the provider authorization URL is printed. Open it in a browser;
the login page served by 'serve' applies the callback.`,
	RunE: runLogin,
}

var callbackCmd = &cobra.Command{
	Use:   "callback <url>",
	Short: "Apply a provider callback URL to the profile",
	Long: `Interpret the URL the identity provider returned to and apply it.

Both the query-token form (?token=...&role=...) and the fragment form
(#/login?oauth=google&status=...) are accepted. The cleaned URL is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runCallback,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session for every instance",
	RunE:  runLogout,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the portal header whenever the signed-in role changes",
	RunE:  runWatch,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List portal users with the stored bearer token",
	RunE:  runUsers,
}

func addSessionCommands(root *cobra.Command) {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.Flags().BoolVar(&loginGoogle, "google", false, "Print the Google sign-in URL instead")
	loginCmd.Flags().StringVar(&loginURL, "url", "", "Login page URL to start from (defaults to the loopback login page)")
	loginCmd.MarkFlagsMutuallyExclusive("email", "google")

	whoamiCmd.Flags().BoolVar(&whoamiRemote, "remote", false, "Also fetch the user record from the backend")

	root.AddCommand(loginCmd, callbackCmd, whoamiCmd, logoutCmd, watchCmd, usersCmd)
}

func outWriter(cmd *cobra.Command) io.Writer {
	if cmd != nil {
		return cmd.OutOrStdout()
	}
	return os.Stdout
}

func errWriter(cmd *cobra.Command) io.Writer {
	if cmd != nil {
		return cmd.ErrOrStderr()
	}
	return os.Stderr
}

func inReader(cmd *cobra.Command) io.Reader {
	if cmd != nil {
		return cmd.InOrStdin()
	}
	return os.Stdin
}

// cliSurface prints what the login surface shows.
type cliSurface struct {
	out, errOut io.Writer
	cleaned     string
}

func (s *cliSurface) Notice(msg string)           { fmt.Fprintln(s.out, msg) }
func (s *cliSurface) Error(msg string)            { fmt.Fprintln(s.errOut, msg) }
func (s *cliSurface) ReplaceURL(url string)       { s.cleaned = url }
func (s *cliSurface) ProviderLoginAvailable(bool) {}

func (s *cliSurface) Navigate(path string, replace bool) {
	slog.Debug("navigation requested", "path", path, "replace", replace)
}

// openSession loads config and wires the session components.
func openSession(cmd *cobra.Command) (*config.Config, *daemon.Components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	comps, err := daemon.Build(commandContext(cmd), cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, comps, nil
}

func newBootstrapper(cfg *config.Config, comps *daemon.Components, surface bootstrap.Surface) *bootstrap.Bootstrapper {
	opts := bootstrap.Options{
		Store:       comps.Store,
		Interpreter: comps.Interpreter,
		Submitter:   comps.Submitter,
		Config:      comps.AppConfig,
		BuildEnv:    comps.BuildEnv,
		Messages:    comps.Messages,
		HomePath:    cfg.Portal.HomePath,
		LoginPath:   cfg.Portal.LoginPath,
	}
	if comps.Provider != nil {
		opts.Provider = comps.Provider
	}
	return bootstrap.New(surface, opts)
}

func defaultLoginURL(cfg *config.Config) string {
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + cfg.Listen.HTTP + cfg.Portal.LoginPath
}

func runLogin(cmd *cobra.Command, args []string) error {
	if !loginGoogle && loginEmail == "" {
		return errors.New("either --email or --google is required")
	}

	cfg, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	surface := &cliSurface{out: outWriter(cmd), errOut: errWriter(cmd)}
	b := newBootstrapper(cfg, comps, surface)
	defer b.Unmount()

	ctx := commandContext(cmd)
	start := loginURL
	if start == "" {
		start = defaultLoginURL(cfg)
	}
	res, err := b.Mount(ctx, start)
	if err != nil {
		return err
	}
	if res.State == bootstrap.Authenticated {
		// The starting URL carried a successful callback.
		return nil
	}

	if loginGoogle {
		authURL, err := b.GoogleLoginURL(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(outWriter(cmd), authURL)
		return nil
	}

	password := ""
	if loginPasswordStdin {
		password, err = readPassword(inReader(cmd))
		if err != nil {
			return err
		}
	}

	if _, err := b.Submit(ctx, loginEmail, password); err != nil {
		// The surface already printed the message.
		if autherr.KindOf(err) != "" {
			overrideExitCode = ExitError
			return nil
		}
		return err
	}
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runCallback(cmd *cobra.Command, args []string) error {
	cfg, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	surface := &cliSurface{out: outWriter(cmd), errOut: errWriter(cmd)}
	b := newBootstrapper(cfg, comps, surface)
	defer b.Unmount()

	res, err := b.Mount(commandContext(cmd), args[0])
	if err != nil {
		return err
	}

	switch res.Outcome.Kind {
	case callback.KindNotApplicable:
		return errors.New("not a provider callback URL")
	case callback.KindFailure:
		fmt.Fprintln(outWriter(cmd), res.CleanedURL)
		overrideExitCode = ExitError
		return nil
	default:
		fmt.Fprintln(outWriter(cmd), res.CleanedURL)
		return nil
	}
}

func runWhoami(cmd *cobra.Command, args []string) error {
	_, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	out := outWriter(cmd)
	sess, ok, err := comps.Store.Read()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "not signed in")
		return nil
	}

	fmt.Fprintf(out, "Name:  %s\n", sess.FullName)
	fmt.Fprintf(out, "Role:  %s\n", sess.Role)
	if sess.Email != "" {
		fmt.Fprintf(out, "Email: %s\n", sess.Email)
	}
	fmt.Fprintf(out, "Token: %v\n", sess.Token != "")

	if whoamiRemote && sess.UserID != nil {
		u, err := comps.API.GetUser(commandContext(cmd), *sess.UserID)
		if err != nil {
			return fmt.Errorf("failed to fetch user: %w", err)
		}
		fmt.Fprintf(out, "Backend: %s <%s> %s\n", u.FullName, u.Email, u.Role)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	_, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	if err := comps.Store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(outWriter(cmd), "signed out")
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	out := outWriter(cmd)
	menu := navigation.New(comps.Broadcaster, comps.Store, comps.Messages)
	defer menu.Close()
	menu.OnChange(func(v navigation.View) {
		if err := navigation.Render(out, v); err != nil {
			slog.Error("failed to render header", "error", err)
		}
	})
	if err := navigation.Render(out, menu.View()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	_, comps, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	users, err := comps.API.ListUsers(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	out := outWriter(cmd)
	for _, u := range users {
		role, ok := session.ParseRole(u.Role)
		if !ok {
			role = session.Role(u.Role)
		}
		id := "-"
		if u.UserID != nil {
			id = fmt.Sprint(*u.UserID)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", id, u.FullName, u.Email, role)
	}
	return nil
}
