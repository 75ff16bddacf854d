// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"net/http"

	"bookstore/internal/app"
	"bookstore/internal/domain"

	"github.com/gorilla/csrf"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.svc.Auth.Login(r.Context(), st, req.Email, req.Password)
	s.commit(w, r, st, err, func() {
		if res.TwoFactorPending {
			writeJSON(w, http.StatusOK, map[string]any{"twoFA": true})
			return
		}
		writeSuccess(w)
	})
}

func (s *Server) handleVerify2FA(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req struct {
		Code looseString `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	err := s.svc.Auth.Verify2FA(r.Context(), st, string(req.Code))
	s.commit(w, r, st, err, func() { writeSuccess(w) })
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.destroySession(w, r); err != nil {
		s.writeServiceError(w, r, domain.Dependency("internal error", err))
		return
	}
	writeSuccess(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	_, err := s.svc.Auth.Register(r.Context(), app.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	body := map[string]any{
		"loggedIn":     st.Authenticated(),
		"isAdmin":      st.Authenticated() && st.User.IsAdmin(),
		"twoFAPending": st.Pending2FA != nil,
	}
	if st.Authenticated() {
		body["user"] = st.User
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled": s.oidcConfig.Enabled,
	})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"token": csrf.Token(r)})
}
