package adapthttp

import (
	"encoding/gob"
	"net/http"

	"bookstore/internal/domain"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	sessionName = "bookstore_session"
	stateKey    = "state"
)

func init() {
	gob.Register(domain.SessionState{})
}

// sessionHandler receives the request's session state. Handlers that mutate
// st must call saveState before writing the response.
type sessionHandler func(w http.ResponseWriter, r *http.Request, st *domain.SessionState)

// withSession loads the session state and passes it to h. An unreadable
// cookie starts a fresh session.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r, s.loadState(r))
	}
}

// loadState reads the session state. A state with both challenge kinds
// pending is never produced by the services; both slots are dropped.
func (s *Server) loadState(r *http.Request) *domain.SessionState {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		s.log.Debug("discarding unreadable session", zap.String("request_id", requestID(r)), zap.Error(err))
	}
	var st domain.SessionState
	if sess != nil {
		if v, ok := sess.Values[stateKey].(domain.SessionState); ok {
			st = v
		}
	}
	if st.Conflicting() {
		s.log.Warn("session holds two pending challenges, dropping both", zap.String("request_id", requestID(r)))
		st.Pending2FA = nil
		st.PendingPasswordChange = nil
	}
	return &st
}

// renewer is implemented by stores that keep sessions server-side under an
// id that should change when the session gains an identity.
type renewer interface {
	Renew(r *http.Request, session *sessions.Session) error
}

// saveState writes st back to the session cookie or store. When st newly
// carries a user, a server-side session is moved to a fresh id.
func (s *Server) saveState(w http.ResponseWriter, r *http.Request, st *domain.SessionState) error {
	sess, _ := s.store.Get(r, sessionName)
	if rn, ok := s.store.(renewer); ok && elevated(sess, st) {
		if err := rn.Renew(r, sess); err != nil {
			return err
		}
	}
	sess.Values[stateKey] = *st
	return sess.Save(r, w)
}

// elevated reports whether st authenticates a user the stored session did not.
func elevated(sess *sessions.Session, st *domain.SessionState) bool {
	if !st.Authenticated() {
		return false
	}
	prev, ok := sess.Values[stateKey].(domain.SessionState)
	return !ok || !prev.Authenticated() || prev.User.ID != st.User.ID
}

// destroySession expires the cookie and deletes any server-side record.
func (s *Server) destroySession(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.store.Get(r, sessionName)
	delete(sess.Values, stateKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// commit saves st, then renders err or calls ok. Session changes made by a
// failing operation, such as a discarded expired challenge, are kept.
func (s *Server) commit(w http.ResponseWriter, r *http.Request, st *domain.SessionState, err error, ok func()) {
	if saveErr := s.saveState(w, r, st); saveErr != nil {
		s.writeServiceError(w, r, domain.Dependency("internal error", saveErr))
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ok()
}
