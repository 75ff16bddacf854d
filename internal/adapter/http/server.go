package adapthttp

import (
	"context"
	"net/http"
	"time"

	"bookstore/internal/app"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Services groups the application services the adapter drives.
type Services struct {
	Auth    *app.AuthService
	Profile *app.ProfileService
	Cart    *app.CartService
	Catalog *app.CatalogService
	Reviews *app.ReviewService
	Admin   *app.AdminService
	Contact *app.ContactService
}

// OIDCConfig holds the optional single sign-on provider.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config *oauth2.Config
}

// Config carries the adapter's transport settings.
type Config struct {
	WebDir             string
	Sessions           sessions.Store
	CSRFKey            []byte
	TrustedOrigins     []string
	SecureCookies      bool
	LoginRatePerMinute int
	OIDC               OIDCConfig
	// Ping reports storage health for /health. Nil means always healthy.
	Ping func(context.Context) error
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	svc            Services
	log            *zap.Logger
	store          sessions.Store
	csrfKey        []byte
	trustedOrigins []string
	secureCookies  bool
	limiter        *ipLimiter
	oidcConfig     OIDCConfig
	webDir         string
	ping           func(context.Context) error
	disableCSRF    bool
}

// New creates a Server wired to the given application services.
func New(svc Services, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	perMinute := cfg.LoginRatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	return &Server{
		svc:            svc,
		log:            log,
		store:          cfg.Sessions,
		csrfKey:        cfg.CSRFKey,
		trustedOrigins: cfg.TrustedOrigins,
		secureCookies:  cfg.SecureCookies,
		limiter:        newIPLimiter(perMinute),
		oidcConfig:     cfg.OIDC,
		webDir:         cfg.WebDir,
		ping:           cfg.Ping,
	}
}

// WithoutCSRF disables CSRF checks (for tests).
func (s *Server) WithoutCSRF() *Server {
	s.disableCSRF = true
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", s.handleHealth)
	api.HandleFunc("GET /config", s.handleConfig)
	api.HandleFunc("GET /csrf", s.handleCSRFToken)

	// auth
	api.HandleFunc("POST /login", s.rateLimited(s.withSession(s.handleLogin)))
	api.HandleFunc("POST /user/login", s.rateLimited(s.withSession(s.handleLogin)))
	api.HandleFunc("POST /verify-2fa", s.rateLimited(s.withSession(s.handleVerify2FA)))
	api.HandleFunc("POST /logout", s.handleLogout)
	api.HandleFunc("POST /register", s.rateLimited(s.handleRegister))
	api.HandleFunc("GET /user/status", s.withSession(s.handleStatus))
	api.HandleFunc("GET /auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("GET /auth/sso/callback", s.withSession(s.handleSSOCallback))

	// profile
	api.HandleFunc("GET /profile", s.withSession(requireUser(s.handleProfileGet)))
	api.HandleFunc("PUT /profile", s.withSession(requireUser(s.handleProfileUpdate)))
	api.HandleFunc("POST /profile/2fa", s.withSession(requireUser(s.handleTwoFactor(true))))
	api.HandleFunc("DELETE /profile/2fa", s.withSession(requireUser(s.handleTwoFactor(false))))
	api.HandleFunc("POST /profile/password/request", s.rateLimited(s.withSession(requireUser(s.handlePasswordRequest))))
	api.HandleFunc("PUT /profile/password", s.rateLimited(s.withSession(requireUser(s.handlePasswordConfirm))))

	// cart
	api.HandleFunc("GET /cart", s.withSession(requireUser(s.handleCartGet)))
	api.HandleFunc("POST /cart/add", s.withSession(requireUser(s.handleCartAdd)))
	api.HandleFunc("POST /cart/update", s.withSession(requireUser(s.handleCartUpdate)))
	api.HandleFunc("POST /cart/remove", s.withSession(requireUser(s.handleCartRemove)))
	api.HandleFunc("POST /cart/clear", s.withSession(requireUser(s.handleCartClear)))

	// catalog
	api.HandleFunc("GET /public/genres", s.handlePublicGenres)
	api.HandleFunc("GET /public/browse", s.handleBrowse)
	api.HandleFunc("GET /public/books/{id}", s.handleBook)
	api.HandleFunc("GET /public/books/{id}/reviews", s.handleBookReviews)
	api.HandleFunc("GET /public/spotlight-books", s.handleSpotlight)
	api.HandleFunc("POST /user/books/{id}/reviews", s.withSession(requireUser(s.handleReviewPost)))
	api.HandleFunc("DELETE /user/reviews/{id}", s.withSession(requireUser(s.handleReviewDelete)))

	// admin
	api.HandleFunc("GET /admin/users", s.withSession(requireAdmin(s.handleAdminUsers)))
	api.HandleFunc("POST /admin/users", s.withSession(requireAdmin(s.handleAdminUserCreate)))
	api.HandleFunc("PUT /admin/users/{id}", s.withSession(requireAdmin(s.handleAdminUserUpdate)))
	api.HandleFunc("GET /genres", s.withSession(requireAdmin(s.handleAdminGenres)))
	api.HandleFunc("POST /genres/add", s.withSession(requireAdmin(s.handleAdminGenreCreate)))
	api.HandleFunc("PUT /genres/{id}", s.withSession(requireAdmin(s.handleAdminGenreUpdate)))
	api.HandleFunc("DELETE /genres/{id}", s.withSession(requireAdmin(s.handleAdminGenreDelete)))
	api.HandleFunc("GET /books", s.withSession(requireAdmin(s.handleAdminBooks)))
	api.HandleFunc("POST /books/add", s.withSession(requireAdmin(s.handleAdminBookCreate)))
	api.HandleFunc("PUT /books/{id}", s.withSession(requireAdmin(s.handleAdminBookUpdate)))
	api.HandleFunc("DELETE /books/{id}", s.withSession(requireAdmin(s.handleAdminBookDelete)))
	api.HandleFunc("POST /books/{id}/image", s.withSession(requireAdmin(s.handleAdminBookImage)))
	api.HandleFunc("GET /admin/reviews", s.withSession(requireAdmin(s.handleAdminReviews)))
	api.HandleFunc("DELETE /admin/reviews/{id}", s.withSession(requireAdmin(s.handleAdminReviewDelete)))

	// contact
	api.HandleFunc("POST /email/send-contact", s.rateLimited(s.handleContact))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", s.csrfMiddleware(api)))
	root.Handle("/", spaFromDisk(s.webDir))

	return s.loggingMiddleware(securityHeaders(withNoCache(root)))
}

// handleHealth reports 503 when the storage ping fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.String("request_id", requestID(r)), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
