package adapthttp

import (
	"net/http"
	"strconv"
	"strings"

	"bookstore/internal/app"
	"bookstore/internal/domain"
)

func (s *Server) handlePublicGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.svc.Catalog.Genres(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": genres})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var genreID int64
	if v := q.Get("genre"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			genreID = id
		}
	}

	page, err := s.svc.Catalog.Browse(r.Context(), strings.TrimSpace(q.Get("search")), genreID, pageQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	book, err := s.svc.Catalog.Book(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	summary, err := s.svc.Reviews.ForBook(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSpotlight(w http.ResponseWriter, r *http.Request) {
	books, err := s.svc.Catalog.Spotlight(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books})
}

func (s *Server) handleReviewPost(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	review, err := s.svc.Reviews.Post(r.Context(), st.User, id, req.Rating, req.Comment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleReviewDelete(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}
	if err := s.svc.Reviews.Delete(r.Context(), st.User, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Text    string `json:"text"`
		HTML    string `json:"html"`
		ReplyTo string `json:"replyTo"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Contact.Send(r.Context(), req.Subject, req.Text, req.HTML, req.ReplyTo); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}
