// Package callback interprets the identity provider's return trip into the
// login surface.
//
// Two encodings are live. The current one carries a token bundle in the query
// string (?token=...&role=...&fullname=...&email=...). The legacy one reports
// a status inside the URL fragment (#/login?oauth=google&status=...). Both are
// normalized into one Outcome.
package callback

import (
	"github.com/ojt-portal/portal-session/internal/session"
)

// Kind tags an Outcome.
type Kind int

const (
	// KindNotApplicable means the URL carries no callback markers.
	KindNotApplicable Kind = iota
	// KindSuccess means the provider signed the user in.
	KindSuccess
	// KindFailure means the provider reported an error.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return "not_applicable"
	}
}

// Outcome is the normalized result of interpreting a URL.
type Outcome struct {
	Kind Kind

	// Format names the matcher that produced the outcome ("" when
	// not applicable).
	Format string

	// Success fields.
	FullName string
	Role     session.Role
	Token    string
	Email    string

	// Failure field.
	Message string
}

// NotApplicable is the outcome for URLs without callback markers.
var NotApplicable = Outcome{Kind: KindNotApplicable}

// Applicable reports whether the outcome must be handled and consumed.
func (o Outcome) Applicable() bool { return o.Kind != KindNotApplicable }

// Session converts a success outcome to the session it establishes.
func (o Outcome) Session() (session.Session, bool) {
	if o.Kind != KindSuccess {
		return session.Session{}, false
	}
	return session.Session{
		FullName: o.FullName,
		Email:    o.Email,
		Role:     o.Role,
		Token:    o.Token,
	}, true
}
