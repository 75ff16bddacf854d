package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adapthttp "bookstore/internal/adapter/http"
	"bookstore/internal/adapter/mail"
	"bookstore/internal/adapter/memory"
	"bookstore/internal/adapter/postgres"
	"bookstore/internal/adapter/redisstore"
	"bookstore/internal/app"
	"bookstore/internal/config"
	"bookstore/internal/domain"
	"bookstore/internal/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// repository is satisfied by both storage adapters.
type repository interface {
	domain.UserRepository
	domain.CatalogRepository
	domain.ReviewRepository
	domain.CartRepository
	domain.ChallengeRepository
}

func main() {
	migrateDir := flag.String("migrate", "", "apply migrations (up or down) and exit")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *migrateDir != "" {
		if err := postgres.Migrate(cfg.DatabaseURL, *migrateDir); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
		log.Info("migration complete", zap.String("direction", *migrateDir))
		return
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo repository
		ping func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer func() { _ = db.Close() }()
		repo = db
		ping = db.Ping
	} else {
		log.Warn("DATABASE_URL is not set; using in-memory storage")
		repo = memory.New()
	}

	var mailer domain.Mailer
	if cfg.SMTPHost != "" {
		m, err := mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		mailer = m
	} else {
		log.Warn("SMTP_HOST is not set; emails are written to the log")
		mailer = mail.NewLog(log)
	}

	store, challenges, closeStore, err := sessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if challenges == nil {
		challenges = repo
	}

	oidcCfg, err := ssoConfig(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []app.Option{app.WithLogger(log)}
	contactTo := cfg.MailContactTo
	if contactTo == "" {
		contactTo = cfg.MailFrom
	}
	auth := app.NewAuthService(repo, challenges, mailer, opts...)
	reviews := app.NewReviewService(repo, repo, opts...)
	svc := adapthttp.Services{
		Auth:    auth,
		Profile: app.NewProfileService(repo, challenges, mailer, opts...),
		Cart:    app.NewCartService(repo, opts...),
		Catalog: app.NewCatalogService(repo),
		Reviews: reviews,
		Admin:   app.NewAdminService(repo, repo, reviews, opts...),
		Contact: app.NewContactService(mailer, contactTo, opts...),
	}

	if cfg.AdminEmail != "" {
		bootstrapAdmin(ctx, auth, cfg, log)
	}

	h := adapthttp.New(svc, adapthttp.Config{
		WebDir:             cfg.WebDir,
		Sessions:           store,
		CSRFKey:            cfg.CSRFSecret,
		TrustedOrigins:     cfg.TrustedOrigins(),
		SecureCookies:      cfg.SessionSecure,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		OIDC:               oidcCfg,
		Ping:               ping,
	}, log).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionStore builds the configured session store. With the redis backend
// it also returns a challenge store on the same client.
func sessionStore(cfg *config.Config) (sessions.Store, domain.ChallengeRepository, func(), error) {
	opts := &sessions.Options{
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	}

	if cfg.SessionBackend == config.BackendRedis {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		store := redisstore.New(client, cfg.SessionKey, cfg.SessionBlockKey)
		store.Options = opts
		return store, redisstore.NewChallengeStore(client), func() { _ = client.Close() }, nil
	}

	store := sessions.NewCookieStore(cfg.SessionKey, cfg.SessionBlockKey)
	store.Options = opts
	return store, nil, func() {}, nil
}

func ssoConfig(ctx context.Context, cfg *config.Config) (adapthttp.OIDCConfig, error) {
	if !cfg.SSOEnabled() {
		return adapthttp.OIDCConfig{}, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, fmt.Errorf("oidc provider: %w", err)
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func bootstrapAdmin(ctx context.Context, auth *app.AuthService, cfg *config.Config, log *zap.Logger) {
	u, err := auth.CreateInitialAdmin(ctx, app.RegisterInput{
		FirstName: "Store",
		LastName:  "Admin",
		Email:     cfg.AdminEmail,
		Password:  cfg.AdminPassword,
	})
	switch {
	case err == nil:
		log.Info("initial admin created", zap.Int64("user_id", u.ID))
	case domain.KindOf(err) == domain.KindConflict:
		log.Debug("admin bootstrap skipped", zap.String("reason", domain.PublicMessage(err)))
	default:
		log.Error("admin bootstrap failed", zap.Error(err))
	}
}
