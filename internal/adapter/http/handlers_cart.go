package adapthttp

import (
	"net/http"

	"bookstore/internal/app"
	"bookstore/internal/domain"
)

type cartRequest struct {
	BookID   flexID `json:"bookId"`
	Quantity *int   `json:"quantity"`
}

func (s *Server) handleCartGet(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	lines, err := s.svc.Cart.Read(r.Context(), st.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req cartRequest
	if !s.decode(w, r, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	total, err := s.svc.Cart.Add(r.Context(), st.User.ID, int64(req.BookID), qty)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "quantity": total})
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req cartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		s.writeServiceError(w, r, app.ErrInvalidPayload)
		return
	}

	if err := s.svc.Cart.Update(r.Context(), st.User.ID, int64(req.BookID), *req.Quantity); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	var req struct {
		BookID flexID `json:"bookId"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.Cart.Remove(r.Context(), st.User.ID, int64(req.BookID)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request, st *domain.SessionState) {
	if err := s.svc.Cart.Clear(r.Context(), st.User.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}
