package callback

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ojt-portal/portal-session/internal/logsanitize"
)

// Interpreter tries a prioritized list of matchers against a URL.
type Interpreter struct {
	matchers []Matcher
}

// New creates an Interpreter that tries matchers in the given order.
func New(matchers ...Matcher) *Interpreter {
	return &Interpreter{matchers: matchers}
}

// NewDefault creates an Interpreter for both live encodings, the query token
// bundle first. failedMessage is used for fragment failures without a message.
func NewDefault(failedMessage string) *Interpreter {
	return New(
		QueryTokenMatcher{},
		FragmentStatusMatcher{FailedMessage: failedMessage},
	)
}

// Interpret returns the outcome encoded in rawURL. It has no side effects.
func (in *Interpreter) Interpret(rawURL string) (Outcome, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return NotApplicable, fmt.Errorf("parse callback url: %w", err)
	}
	for _, m := range in.matchers {
		if o, ok := m.Match(u); ok {
			slog.Debug("callback matched",
				"format", m.Name(),
				"outcome", o.Kind.String(),
				"url", logsanitize.RedactURL(rawURL),
			)
			return o, nil
		}
	}
	return NotApplicable, nil
}

// Consume returns rawURL with every recognized callback parameter removed.
// Unrelated parameters and the fragment route survive. A URL without callback
// markers is returned unchanged.
func (in *Interpreter) Consume(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, fmt.Errorf("parse callback url: %w", err)
	}

	matched := false
	for _, m := range in.matchers {
		if _, ok := m.Match(u); ok {
			m.Strip(u)
			matched = true
		}
	}
	if !matched {
		return rawURL, nil
	}
	return u.String(), nil
}
