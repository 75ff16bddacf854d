package adapthttp

import (
	"net/http"

	"bookstore/internal/domain"
)

type profileResponse struct {
	ID           int64       `json:"id"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	TwoFAEnabled bool        `json:"twoFAEnabled"`
}

func newProfileResponse(u *domain.User) profileResponse {
	return profileResponse{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Role:         u.Role,
		TwoFAEnabled: u.TwoFactorEnabled,
	}
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	u, err := s.svc.Profile.Get(r.Context(), st)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(u))
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.svc.Profile.Update(r.Context(), st, req.FirstName, req.LastName)
	s.commit(w, r, st, err, func() {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": newProfileResponse(u)})
	})
}

func (s *Server) handleTwoFactor(enabled bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
		if err := s.svc.Profile.SetTwoFactor(r.Context(), st, enabled); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeSuccess(w)
	}
}

func (s *Server) handlePasswordRequest(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	err := s.svc.Profile.RequestPasswordChange(r.Context(), st)
	s.commit(w, r, st, err, func() { writeSuccess(w) })
}

func (s *Server) handlePasswordConfirm(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req struct {
		Code        looseString `json:"code"`
		NewPassword string      `json:"newPassword"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	err := s.svc.Profile.ConfirmPasswordChange(r.Context(), st, string(req.Code), req.NewPassword)
	s.commit(w, r, st, err, func() { writeSuccess(w) })
}
