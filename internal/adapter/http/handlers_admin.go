package adapthttp

import (
	"net/http"
	"strconv"

	"bookstore/internal/app"
	"bookstore/internal/domain"

	"go.uber.org/zap"
)

const maxImageBytes = 10 << 20

type userRequest struct {
	FirstName        string      `json:"firstName"`
	LastName         string      `json:"lastName"`
	Email            string      `json:"email"`
	Password         string      `json:"password"`
	Role             domain.Role `json:"role"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
}

func (u userRequest) input() app.UserInput {
	role := u.Role
	if role == 0 {
		role = domain.RoleUser
	}
	return app.UserInput{
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		Password:         u.Password,
		Role:             role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// pathIDOrReject writes the invalid payload response when the id is malformed.
func (s *Server) pathIDOrReject(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return 0, false
	}
	return id, true
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	page, err := s.svc.Admin.Users(r.Context(), pageQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminUserCreate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	var req userRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.svc.Admin.CreateUser(r.Context(), req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleAdminUserUpdate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	var req userRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.svc.Admin.UpdateUser(r.Context(), id, req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAdminGenres(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	page, err := s.svc.Admin.Genres(r.Context(), pageQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminGenreCreate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	var req app.GenreInput
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.svc.Admin.CreateGenre(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleAdminGenreUpdate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	var req app.GenreInput
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.svc.Admin.UpdateGenre(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAdminGenreDelete(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	if err := s.svc.Admin.DeleteGenre(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	page, err := s.svc.Admin.Books(r.Context(), r.URL.Query().Get("search"), pageQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminBookCreate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	var req app.BookInput
	if !s.decode(w, r, &req) {
		return
	}
	b, err := s.svc.Admin.CreateBook(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleAdminBookUpdate(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	var req app.BookInput
	if !s.decode(w, r, &req) {
		return
	}
	b, err := s.svc.Admin.UpdateBook(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAdminBookDelete(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	if err := s.svc.Admin.DeleteBook(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleAdminBookImage(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		s.log.Debug("rejected image upload", zap.Error(err))
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	defer file.Close() //nolint:errcheck

	if err := s.svc.Admin.SetBookImage(r.Context(), id, file); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleAdminReviews(w http.ResponseWriter, r *http.Request, _ *domain.SessionState) {
	bookID, err := strconv.ParseInt(r.URL.Query().Get("bookId"), 10, 64)
	if err != nil || bookID <= 0 {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	summary, err := s.svc.Admin.Reviews(r.Context(), bookID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAdminReviewDelete(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	id, ok := s.pathIDOrReject(w, r)
	if !ok {
		return
	}
	if err := s.svc.Admin.DeleteReview(r.Context(), st.User, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}
