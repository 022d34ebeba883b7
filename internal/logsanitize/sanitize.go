// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import (
	"net/url"
	"strings"
)

// Sanitize removes control characters from log field values to reduce
// the risk of log injection (CWE-117).
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
}

// secretParams are query parameters whose values never reach the logs.
var secretParams = []string{"token", "code", "access_token", "id_token", "password"}

// RedactURL sanitizes a URL for logging and masks bearer-like query
// parameters, including ones nested in the fragment. Unparseable input is
// sanitized and returned as is.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Sanitize(raw)
	}
	if u.RawQuery != "" {
		u.RawQuery = redactQuery(u.RawQuery)
	}
	if frag := u.EscapedFragment(); strings.Contains(frag, "?") {
		i := strings.IndexByte(frag, '?')
		u.RawFragment = frag[:i+1] + redactQuery(frag[i+1:])
		u.Fragment, _ = url.PathUnescape(u.RawFragment)
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return Sanitize(u.String())
}

func redactQuery(raw string) string {
	q, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return q.Encode()
}
