package callback

import (
	"net/url"
	"slices"
	"strings"

	"github.com/ojt-portal/portal-session/internal/session"
)

// Defaults applied when the provider omits a field.
const (
	DefaultFullName = "Google User"
	DefaultRole     = session.RoleStudent
)

// Matcher recognizes one callback encoding.
type Matcher interface {
	// Name identifies the encoding.
	Name() string
	// Match returns the outcome and true if u carries this encoding's markers.
	Match(u *url.URL) (Outcome, bool)
	// Strip removes exactly the parameters this encoding recognizes from u.
	Strip(u *url.URL)
}

// callbackRole maps a role parameter to a role. Roles delivered through the
// redirect are not authoritative, so unknown values fall back to the default.
func callbackRole(v string) session.Role {
	if v == "" {
		return DefaultRole
	}
	if r, ok := session.ParseRole(v); ok {
		return r
	}
	return DefaultRole
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// QueryTokenMatcher handles the server-completed flow, which forwards a token
// bundle in the query string.
type QueryTokenMatcher struct{}

var queryTokenParams = []string{"token", "role", "fullname", "email"}

func (QueryTokenMatcher) Name() string { return "query_token" }

// Match yields Success whenever a token parameter is present.
func (QueryTokenMatcher) Match(u *url.URL) (Outcome, bool) {
	q := u.Query()
	if !q.Has("token") {
		return Outcome{}, false
	}
	return Outcome{
		Kind:     KindSuccess,
		Format:   "query_token",
		Token:    q.Get("token"),
		Role:     callbackRole(q.Get("role")),
		FullName: orDefault(q.Get("fullname"), DefaultFullName),
		Email:    q.Get("email"),
	}, true
}

func (QueryTokenMatcher) Strip(u *url.URL) {
	u.RawQuery = dropPairs(u.RawQuery, queryTokenParams)
}

// FragmentStatusMatcher handles the legacy client-completed flow, which
// reports a status in a query string nested inside the fragment.
type FragmentStatusMatcher struct {
	// FailedMessage is shown when the provider reports a failure without a
	// message.
	FailedMessage string
}

var fragmentStatusParams = []string{"oauth", "status", "message", "role", "fullname", "email"}

func (FragmentStatusMatcher) Name() string { return "fragment_status" }

func (m FragmentStatusMatcher) Match(u *url.URL) (Outcome, bool) {
	q, ok := fragmentQuery(u)
	if !ok || q.Get("oauth") != "google" {
		return Outcome{}, false
	}

	if q.Get("status") == "success" {
		return Outcome{
			Kind:     KindSuccess,
			Format:   "fragment_status",
			Role:     callbackRole(q.Get("role")),
			FullName: orDefault(q.Get("fullname"), DefaultFullName),
			Email:    q.Get("email"),
		}, true
	}

	msg := decodeMessage(q.Get("message"))
	if msg == "" {
		msg = m.FailedMessage
	}
	return Outcome{
		Kind:    KindFailure,
		Format:  "fragment_status",
		Message: msg,
	}, true
}

func (FragmentStatusMatcher) Strip(u *url.URL) {
	frag := u.EscapedFragment()
	path, query, ok := strings.Cut(frag, "?")
	if !ok {
		return
	}
	if rest := dropPairs(query, fragmentStatusParams); rest != "" {
		setFragment(u, path+"?"+rest)
		return
	}
	setFragment(u, path)
}

// fragmentQuery parses the query nested in a fragment like "#/login?a=b". ok
// is false when the fragment has no nested query.
func fragmentQuery(u *url.URL) (url.Values, bool) {
	_, raw, ok := strings.Cut(u.EscapedFragment(), "?")
	if !ok {
		return nil, false
	}
	// ParseQuery keeps the pairs it could parse; a stray bad escape must not
	// hide the markers.
	q, _ := url.ParseQuery(raw)
	return q, true
}

// dropPairs removes the pairs of an escaped query whose decoded key is in
// keys. Every other pair is kept as written.
func dropPairs(raw string, keys []string) string {
	if raw == "" {
		return ""
	}
	kept := make([]string, 0, strings.Count(raw, "&")+1)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && slices.Contains(keys, k) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// setFragment replaces the fragment with an already escaped value.
func setFragment(u *url.URL, frag string) {
	unescaped, err := url.PathUnescape(frag)
	if err != nil {
		u.Fragment, u.RawFragment = frag, ""
		return
	}
	u.Fragment, u.RawFragment = unescaped, frag
}

// decodeMessage undoes one more level of percent-encoding when the provider
// double-encoded the message. A message that is not valid percent-encoding is
// returned as parsed.
func decodeMessage(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	if d, err := url.PathUnescape(v); err == nil {
		return d
	}
	return v
}
