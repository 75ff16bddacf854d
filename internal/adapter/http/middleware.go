package adapthttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"bookstore/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const requestIDKey contextKey = "request_id"

var (
	errNotAuthenticated = errors.New("not authenticated")
	errForbidden        = errors.New("forbidden")
	errTooManyRequests  = errors.New("too many requests")
)

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware tags each request with an id and logs its outcome.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// csrfMiddleware rejects unsafe requests without a valid X-CSRF-Token header
// and exposes the current token on every response.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	if s.disableCSRF {
		return next
	}
	protect := csrf.Protect(s.csrfKey,
		csrf.Secure(s.secureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(s.trustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.log.Warn("csrf rejected", zap.String("path", r.URL.Path), zap.Error(csrf.FailureReason(r)))
			writeError(w, http.StatusForbidden, errors.New("invalid csrf token"))
		})),
	)
	expose := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CSRF-Token", csrf.Token(r))
		next.ServeHTTP(w, r)
	})
	h := protect(expose)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && !s.secureCookies {
			r = csrf.PlaintextHTTPRequest(r)
		}
		h.ServeHTTP(w, r)
	})
}

// requireUser rejects sessions without an authenticated user.
func requireUser(h sessionHandler) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
		if !st.Authenticated() {
			writeError(w, http.StatusUnauthorized, errNotAuthenticated)
			return
		}
		h(w, r, st)
	}
}

// requireAdmin rejects anonymous sessions with 401 and non-admins with 403.
func requireAdmin(h sessionHandler) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
		if !st.Authenticated() {
			writeError(w, http.StatusUnauthorized, errNotAuthenticated)
			return
		}
		switch st.User.Role {
		case domain.RoleAdmin:
			h(w, r, st)
		case domain.RoleUser:
			writeError(w, http.StatusForbidden, errForbidden)
		default:
			writeError(w, http.StatusForbidden, errForbidden)
		}
	}
}

// ipLimiter hands out one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdle = 10 * time.Minute

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		visitors: make(map[string]*visitor),
		lastGC:   time.Now(),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastGC) > visitorIdle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited throttles h per client address.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		h(w, r)
	}
}
