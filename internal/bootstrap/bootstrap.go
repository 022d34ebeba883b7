// Package bootstrap drives the login surface: it applies a provider callback
// found in the current URL, accepts password logins, and hands a signed-in
// user over to the home surface.
//
// Every mutation happens under one loop lock, which stands in for the UI
// event loop. Asynchronous work (config load, credential submission, the
// post-login delay) captures the mount epoch when it starts and is dropped if
// the surface was unmounted or remounted in the meantime.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojt-portal/portal-session/internal/auth"
	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/callback"
	"github.com/ojt-portal/portal-session/internal/config"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/logsanitize"
	"github.com/ojt-portal/portal-session/internal/oidc"
	"github.com/ojt-portal/portal-session/internal/session"
)

//go:generate mockgen -destination=mock_surface_test.go -package=bootstrap github.com/ojt-portal/portal-session/internal/bootstrap Surface

// Surface is the login page the Bootstrapper renders into. Methods are called
// with the loop lock held and must not call back into the Bootstrapper.
type Surface interface {
	Notice(msg string)
	Error(msg string)
	ReplaceURL(url string)
	Navigate(path string, replace bool)
	ProviderLoginAvailable(available bool)
}

// Interpreter reads and consumes provider callbacks.
type Interpreter interface {
	Interpret(rawURL string) (callback.Outcome, error)
	Consume(rawURL string) (string, error)
}

// Submitter performs password logins.
type Submitter interface {
	Submit(ctx context.Context, email, password string) auth.Outcome
}

// ConfigLoader loads the remote app config.
type ConfigLoader interface {
	Load(ctx context.Context) (config.AppConfig, error)
}

// URLBuilder builds the provider authorization redirect.
type URLBuilder interface {
	AuthorizationURL(settings config.OAuthSettings) (*oidc.AuthFlowData, error)
}

// Clock schedules deferred work.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// State is a Bootstrapper state.
type State int32

const (
	Idle State = iota
	CheckingCallback
	ApplyingCallback
	AwaitingInput
	Authenticated
	AnonymousInteractive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingCallback:
		return "checking_callback"
	case ApplyingCallback:
		return "applying_callback"
	case AwaitingInput:
		return "awaiting_input"
	case Authenticated:
		return "authenticated"
	case AnonymousInteractive:
		return "anonymous_interactive"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrMounted is returned by Mount while a previous mount is still live.
	ErrMounted = errors.New("login surface already mounted")
	// ErrUnmounted is returned when a result arrived after the surface was
	// torn down. The result was discarded.
	ErrUnmounted = errors.New("login surface unmounted")
)

// Options wires a Bootstrapper's collaborators.
type Options struct {
	Store       *session.Store
	Interpreter Interpreter
	Submitter   Submitter
	// Config and Provider may be nil; provider login is then unavailable.
	Config   ConfigLoader
	Provider URLBuilder
	BuildEnv config.BuildEnv
	Messages *i18n.Catalog

	HomePath      string
	LoginPath     string
	RedirectDelay time.Duration
	Clock         Clock
}

// Result describes what Mount did.
type Result struct {
	State   State
	Outcome callback.Outcome
	// CleanedURL is the URL after consuming the callback, or the input when
	// nothing was consumed.
	CleanedURL string
}

// Bootstrapper is the login surface state machine.
type Bootstrapper struct {
	opts    Options
	surface Surface

	state atomic.Int32

	// loop serializes every mutation and every Surface call.
	loop       sync.Mutex
	epoch      uint64
	alive      bool
	submitting bool
	stopTimer  func() bool
	done       chan struct{}

	remote      config.AppConfig
	remoteErr   error
	remoteReady bool
}

// New creates a Bootstrapper rendering into surface.
func New(surface Surface, opts Options) *Bootstrapper {
	if opts.Messages == nil {
		opts.Messages = i18n.New()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.HomePath == "" {
		opts.HomePath = "/"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	return &Bootstrapper{
		opts:    opts,
		surface: surface,
		done:    make(chan struct{}),
	}
}

// State returns the current state. It never blocks.
func (b *Bootstrapper) State() State {
	return State(b.state.Load())
}

func (b *Bootstrapper) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		slog.Debug("login surface state", "from", prev.String(), "to", s.String())
	}
}

// Done is closed when the post-login navigation to the home surface has
// fired for the current mount.
func (b *Bootstrapper) Done() <-chan struct{} {
	b.loop.Lock()
	defer b.loop.Unlock()
	return b.done
}

// live reports whether work started under epoch may still touch the surface.
// The loop lock must be held.
func (b *Bootstrapper) live(epoch uint64) bool {
	return b.alive && b.epoch == epoch
}

// Mount starts a fresh liveness scope, kicks off the config load and applies
// any callback carried by currentURL.
func (b *Bootstrapper) Mount(ctx context.Context, currentURL string) (Result, error) {
	b.loop.Lock()
	defer b.loop.Unlock()

	if b.alive {
		return Result{State: b.State(), CleanedURL: currentURL}, ErrMounted
	}
	b.epoch++
	b.alive = true
	b.submitting = false
	b.done = make(chan struct{})
	b.remote, b.remoteErr, b.remoteReady = config.AppConfig{}, nil, false
	epoch := b.epoch

	b.setState(CheckingCallback)
	b.startConfigLoad(ctx, epoch)

	outcome, ierr := b.opts.Interpreter.Interpret(currentURL)
	if ierr != nil {
		slog.Warn("unreadable login URL", "url", logsanitize.RedactURL(currentURL), "error", ierr)
		outcome = callback.NotApplicable
	}

	var err error
	res := Result{Outcome: outcome, CleanedURL: currentURL}
	switch outcome.Kind {
	case callback.KindSuccess:
		err = b.applySuccess(epoch, currentURL, outcome, &res)
	case callback.KindFailure:
		b.applyFailure(currentURL, outcome, &res)
	default:
		b.setState(AwaitingInput)
		b.setState(AnonymousInteractive)
	}
	res.State = b.State()
	return res, err
}

func (b *Bootstrapper) applySuccess(epoch uint64, currentURL string, outcome callback.Outcome, res *Result) error {
	b.setState(ApplyingCallback)

	sess, _ := outcome.Session()
	writeErr := b.opts.Store.Write(sess)

	res.CleanedURL = b.consume(currentURL)
	b.surface.ReplaceURL(res.CleanedURL)

	if writeErr != nil {
		msg := b.opts.Messages.T(i18n.KeyGoogleFailed)
		slog.Error("failed to store provider session", "error", writeErr)
		b.surface.Error(msg)
		b.surface.Navigate(b.opts.LoginPath, true)
		b.setState(AnonymousInteractive)
		return autherr.New(autherr.KindCallback, msg, writeErr)
	}

	slog.Info("provider login applied",
		"format", outcome.Format,
		"role", sess.Role,
		"has_token", sess.Token != "",
	)
	b.surface.Notice(b.opts.Messages.T(i18n.KeyGoogleSuccess))
	b.scheduleHome(epoch)
	b.setState(Authenticated)
	return nil
}

func (b *Bootstrapper) applyFailure(currentURL string, outcome callback.Outcome, res *Result) {
	b.setState(ApplyingCallback)

	slog.Info("provider login failed", "format", outcome.Format, "message", logsanitize.Sanitize(outcome.Message))
	b.surface.Error(outcome.Message)

	res.CleanedURL = b.consume(currentURL)
	b.surface.ReplaceURL(res.CleanedURL)
	b.surface.Navigate(b.opts.LoginPath, true)
	b.setState(AnonymousInteractive)
}

func (b *Bootstrapper) consume(currentURL string) string {
	cleaned, err := b.opts.Interpreter.Consume(currentURL)
	if err != nil {
		slog.Warn("could not clean login URL", "error", err)
		return currentURL
	}
	return cleaned
}

// scheduleHome arms the post-login navigation. The loop lock must be held.
func (b *Bootstrapper) scheduleHome(epoch uint64) {
	done := b.done
	b.stopTimer = b.opts.Clock.AfterFunc(b.opts.RedirectDelay, func() {
		b.loop.Lock()
		defer b.loop.Unlock()
		if !b.live(epoch) {
			return
		}
		b.stopTimer = nil
		b.surface.Navigate(b.opts.HomePath, false)
		close(done)
	})
}

// Submit performs a password login. Input is accepted only while the surface
// is AnonymousInteractive and no other submission is in flight. On failure
// the message is shown and neither state nor storage changes.
func (b *Bootstrapper) Submit(ctx context.Context, email, password string) (auth.Outcome, error) {
	b.loop.Lock()
	if !b.alive || b.State() != AnonymousInteractive || b.submitting {
		b.loop.Unlock()
		return auth.Outcome{}, autherr.ErrNotInteractive
	}
	b.submitting = true
	epoch := b.epoch
	b.loop.Unlock()

	out := b.opts.Submitter.Submit(ctx, email, password)

	b.loop.Lock()
	defer b.loop.Unlock()
	if !b.live(epoch) {
		slog.Debug("discarding login result after unmount")
		return out, ErrUnmounted
	}
	b.submitting = false

	if !out.OK() {
		b.surface.Error(out.Message)
		return out, out.Err
	}

	if err := b.opts.Store.Write(out.Session); err != nil {
		msg := b.opts.Messages.T(i18n.KeyLoginFailed)
		slog.Error("failed to store session", "error", err)
		b.surface.Error(msg)
		out = auth.Outcome{Message: msg, Err: autherr.New(autherr.KindInput, msg, err)}
		return out, out.Err
	}

	b.surface.Notice(b.opts.Messages.T(i18n.KeyWelcome, out.Session.FullName))
	b.scheduleHome(epoch)
	b.setState(Authenticated)
	return out, nil
}

// startConfigLoad fetches the app config in the background. Failures only
// mark provider login unavailable. The loop lock must be held.
func (b *Bootstrapper) startConfigLoad(ctx context.Context, epoch uint64) {
	if b.opts.Config == nil || b.opts.Provider == nil {
		b.remoteErr = autherr.ErrConfigUnavailable
		b.remoteReady = true
		b.surface.ProviderLoginAvailable(b.opts.Provider != nil && b.opts.BuildEnv.GoogleClientID != "")
		return
	}

	go func() {
		cfg, err := b.opts.Config.Load(ctx)

		b.loop.Lock()
		defer b.loop.Unlock()
		if !b.live(epoch) {
			return
		}
		b.remote, b.remoteErr, b.remoteReady = cfg, err, true
		b.surface.ProviderLoginAvailable(err == nil || b.opts.BuildEnv.GoogleClientID != "")
	}()
}

// GoogleLoginURL builds the provider redirect for the current mount. If the
// app config has not arrived yet it is awaited.
func (b *Bootstrapper) GoogleLoginURL(ctx context.Context) (string, error) {
	b.loop.Lock()
	if !b.alive {
		b.loop.Unlock()
		return "", autherr.ErrNotInteractive
	}
	epoch := b.epoch
	ready := b.remoteReady
	b.loop.Unlock()

	var (
		remote    config.AppConfig
		remoteErr error
	)
	if !ready {
		// The loader shares one in-flight fetch, so this joins the mount's.
		remote, remoteErr = b.opts.Config.Load(ctx)
	}

	b.loop.Lock()
	defer b.loop.Unlock()
	if !b.live(epoch) {
		return "", ErrUnmounted
	}
	if b.remoteReady {
		remote, remoteErr = b.remote, b.remoteErr
	}

	settings := config.Resolve(b.opts.BuildEnv, remote)
	if settings.ClientID == "" || b.opts.Provider == nil {
		if remoteErr != nil || b.opts.Provider == nil {
			msg := b.opts.Messages.T(i18n.KeyProviderUnavailable)
			b.surface.Error(msg)
			return "", autherr.New(autherr.KindConfigLoad, msg, autherr.ErrConfigUnavailable)
		}
		msg := b.opts.Messages.T(i18n.KeyMissingClientID)
		b.surface.Error(msg)
		return "", autherr.New(autherr.KindInput, msg, autherr.ErrMissingClientID)
	}

	flow, err := b.opts.Provider.AuthorizationURL(settings)
	if err != nil {
		msg := b.opts.Messages.T(i18n.KeyGoogleFailed)
		b.surface.Error(msg)
		return "", autherr.New(autherr.KindInput, msg, err)
	}
	slog.Debug("provider redirect built", "redirect_uri", settings.RedirectURI)
	return flow.AuthURL, nil
}

// Unmount ends the liveness scope. Pending timers are stopped and results
// that arrive later are discarded.
func (b *Bootstrapper) Unmount() {
	b.loop.Lock()
	defer b.loop.Unlock()

	b.alive = false
	b.submitting = false
	if b.stopTimer != nil {
		b.stopTimer()
		b.stopTimer = nil
	}
	if State(b.state.Load()) != Authenticated {
		b.setState(Idle)
	}
}
