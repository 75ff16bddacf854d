// Package redisstore is a gorilla/sessions store that keeps session values in
// Redis. The cookie carries only a signed session id.
package redisstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const keyPrefix = "session:"

// DefaultTTL applies to sessions whose cookie has no MaxAge.
const DefaultTTL = 24 * time.Hour

// Store implements sessions.Store.
type Store struct {
	client  redis.UniversalClient
	codecs  []securecookie.Codec
	Options *sessions.Options
}

var _ sessions.Store = (*Store)(nil)

// New creates a store. keyPairs sign and optionally encrypt the session id
// cookie, as in sessions.NewCookieStore.
func New(client redis.UniversalClient, keyPairs ...[]byte) *Store {
	return &Store{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   int(DefaultTTL / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Get returns the session cached in the request registry or loads it.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, forged or
// expired id yields a fresh session; a forged cookie also returns the decode error.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, err
	}

	found, err := s.load(r.Context(), id, session)
	if err != nil {
		return session, err
	}
	if found {
		session.ID = id
		session.IsNew = false
	}
	return session, nil
}

// Save persists the session and writes the id cookie. A negative MaxAge
// deletes the session.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(ctx, keyPrefix+session.ID).Err(); err != nil {
				return fmt.Errorf("redisstore: delete: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.save(ctx, session); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Renew drops the stored session and clears its id, so the next Save issues
// a fresh id. Call it when a session changes privilege.
func (s *Store) Renew(r *http.Request, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.client.Del(r.Context(), keyPrefix+session.ID).Err(); err != nil {
		return fmt.Errorf("redisstore: renew: %w", err)
	}
	session.ID = ""
	return nil
}

func ttl(opts *sessions.Options) time.Duration {
	if opts.MaxAge > 0 {
		return time.Duration(opts.MaxAge) * time.Second
	}
	return DefaultTTL
}

func (s *Store) save(ctx context.Context, session *sessions.Session) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+session.ID, buf.Bytes(), ttl(session.Options)).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, id string, session *sessions.Session) (bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisstore: get: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values); err != nil {
		return false, fmt.Errorf("redisstore: decode: %w", err)
	}
	return true, nil
}
