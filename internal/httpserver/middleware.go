package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ojt-portal/portal-session/internal/logsanitize"
)

const requestIDHeader = "X-Request-Id"

// statusRecorder keeps the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// accessLog tags every response with a request id and logs one line when the
// handler returns. Query strings are never logged; callback URLs carry tokens.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request", // #nosec G706 -- values sanitized via logsanitize
			"request_id", id,
			"method", logsanitize.Sanitize(r.Method),
			"path", logsanitize.Sanitize(r.URL.Path),
			"query_present", r.URL.RawQuery != "",
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"path", logsanitize.Sanitize(r.URL.Path),
					"error", err,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// budget is a per-peer token bucket.
type budget struct {
	rate  rate.Limit
	burst int
}

var (
	// pageBudget covers every request.
	pageBudget = budget{rate: 10, burst: 50}
	// credentialBudget additionally covers password posts and provider
	// redirects.
	credentialBudget = budget{rate: rate.Every(5 * time.Second), burst: 5}
)

type peerEntry struct {
	page       *rate.Limiter
	credential *rate.Limiter
	lastSeen   time.Time
}

// loginLimiter throttles peers of the login surface. Idle peers are pruned on
// access.
type loginLimiter struct {
	mu          sync.Mutex
	peers       map[string]*peerEntry
	ttl         time.Duration
	maxPeers    int
	lastSweep   time.Time
	now         func() time.Time
	isSensitive func(*http.Request) bool
}

func newLoginLimiter(loginPath string) *loginLimiter {
	l := &loginLimiter{
		peers:    make(map[string]*peerEntry),
		ttl:      5 * time.Minute,
		maxPeers: 1000,
		now:      time.Now,
	}
	l.isSensitive = func(r *http.Request) bool {
		return (r.Method == http.MethodPost && r.URL.Path == loginPath) ||
			(r.Method == http.MethodGet && r.URL.Path == loginPath+"/google")
	}
	return l
}

func (l *loginLimiter) peer(ip string) *peerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, e := range l.peers {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.peers, k)
			}
		}
		l.lastSweep = now
	}

	if e, ok := l.peers[ip]; ok {
		e.lastSeen = now
		return e
	}
	if len(l.peers) >= l.maxPeers {
		l.dropOldest()
	}
	e := &peerEntry{
		page:       rate.NewLimiter(pageBudget.rate, pageBudget.burst),
		credential: rate.NewLimiter(credentialBudget.rate, credentialBudget.burst),
		lastSeen:   now,
	}
	l.peers[ip] = e
	return e
}

// dropOldest must be called with mu held.
func (l *loginLimiter) dropOldest() {
	var oldest string
	var seen time.Time
	for ip, e := range l.peers {
		if oldest == "" || e.lastSeen.Before(seen) {
			oldest, seen = ip, e.lastSeen
		}
	}
	delete(l.peers, oldest)
}

func (l *loginLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}

func (l *loginLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := peerIP(r)
		e := l.peer(ip)

		allowed := e.page.Allow()
		if allowed && l.isSensitive(r) {
			allowed = e.credential.Allow()
		}
		if !allowed {
			slog.Warn("rate limit exceeded", // #nosec G706 -- values sanitized via logsanitize
				"ip", logsanitize.Sanitize(ip),
				"path", logsanitize.Sanitize(r.URL.Path),
			)
			w.Header().Set("Retry-After", "5")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// peerIP returns the connection peer. Forwarding headers are ignored; the
// surface listens on loopback.
func peerIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		// Callback URLs carry bearer tokens.
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; form-action 'self'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
