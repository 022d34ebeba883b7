// Package auth submits password credentials to the identity endpoint and
// turns the raw response into a typed outcome.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ojt-portal/portal-session/internal/api"
	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/logsanitize"
	"github.com/ojt-portal/portal-session/internal/session"
)

// Backend is the identity endpoint.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
}

// Outcome is the result of one submission. Exactly one of Session or Message
// is meaningful, as reported by OK.
type Outcome struct {
	Session session.Session
	// Message is the user-facing failure text.
	Message string
	// Err is the classified cause of a failure.
	Err error
}

// OK reports whether the submission produced a session.
func (o Outcome) OK() bool { return o.Err == nil }

// Submitter posts credentials once per call. It never retries and never
// touches stored session state.
type Submitter struct {
	backend Backend
	msgs    *i18n.Catalog
}

// NewSubmitter creates a Submitter.
func NewSubmitter(backend Backend, msgs *i18n.Catalog) *Submitter {
	if msgs == nil {
		msgs = i18n.New()
	}
	return &Submitter{backend: backend, msgs: msgs}
}

// Submit sends one login request. The backend's role is used as is; a
// missing or unknown role is a failure rather than a reason to guess.
func (s *Submitter) Submit(ctx context.Context, email, password string) Outcome {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.fail(autherr.KindInput, s.msgs.T(i18n.KeyLoginMissingCredentials), nil)
	}

	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		msg := s.msgs.T(i18n.KeyLoginFailed)
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		slog.Debug("login request failed",
			"email", logsanitize.Sanitize(email),
			"error", err,
		)
		return s.fail(autherr.KindTransport, msg, err)
	}

	if resp == nil || resp.Data == nil {
		return s.fail(autherr.KindTransport, s.msgs.T(i18n.KeyLoginNoUserData), nil)
	}

	sess, err := toSession(resp.Data)
	if err != nil {
		slog.Warn("login response rejected",
			"email", logsanitize.Sanitize(email),
			"error", err,
		)
		return s.fail(autherr.KindTransport, s.msgs.T(i18n.KeyLoginFailed), err)
	}

	slog.Info("login succeeded", "role", sess.Role, "has_token", sess.Token != "")
	return Outcome{Session: sess}
}

func (s *Submitter) fail(kind autherr.Kind, msg string, cause error) Outcome {
	return Outcome{Message: msg, Err: autherr.New(kind, msg, cause)}
}

func toSession(u *api.User) (session.Session, error) {
	role, ok := session.ParseRole(u.Role)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: backend role %q", autherr.ErrInvalidSession, u.Role)
	}
	sess := session.Session{
		UserID:   u.UserID,
		FullName: strings.TrimSpace(u.FullName),
		Email:    u.Email,
		Role:     role,
		Token:    u.Token,
	}
	if err := sess.Validate(); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}
