package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"bookstore/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

const stateCookie = "oauth_state"

var (
	errSSODisabled     = errors.New("sso disabled")
	errInvalidState    = errors.New("invalid state")
	errSSOFailed       = errors.New("sso login failed")
	errEmailUnverified = errors.New("email not verified")
)

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errSSODisabled)
		return
	}
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || s.secureCookies,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oidcConfig.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errSSODisabled)
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		writeError(w, http.StatusBadRequest, errInvalidState)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, MaxAge: -1, Path: "/"})

	ctx := r.Context()
	token, err := s.oidcConfig.OAuth2Config.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		s.ssoFailed(w, r, "token exchange", err)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		s.ssoFailed(w, r, "missing id_token", errors.New("no id_token in response"))
		return
	}
	verifier := s.oidcConfig.Provider.Verifier(&oidc.Config{ClientID: s.oidcConfig.OAuth2Config.ClientID})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.ssoFailed(w, r, "verify id_token", err)
		return
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		s.ssoFailed(w, r, "parse claims", err)
		return
	}
	if !emailVerified(claims.EmailVerified) {
		writeError(w, http.StatusForbidden, errEmailUnverified)
		return
	}

	res, err := s.svc.Auth.LoginExternal(ctx, st, claims.Email, claims.GivenName, claims.FamilyName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.saveState(w, r, st); err != nil {
		s.writeServiceError(w, r, domain.Dependency("internal error", err))
		return
	}
	if res.TwoFactorPending {
		http.Redirect(w, r, "/?twoFA=1", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// emailVerified accepts only an explicit email_verified=true claim.
func emailVerified(claim *bool) bool {
	return claim != nil && *claim
}

func (s *Server) ssoFailed(w http.ResponseWriter, r *http.Request, step string, err error) {
	s.log.Warn("sso callback failed", zap.String("step", step), zap.String("request_id", requestID(r)), zap.Error(err))
	writeError(w, http.StatusBadGateway, errSSOFailed)
}

func generateState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
