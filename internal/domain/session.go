package domain

import (
	"context"
	"time"
)

// AuthenticatedUser is the identity held by an authenticated session.
type AuthenticatedUser struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// IsAdmin reports whether the identity carries the admin role.
func (a *AuthenticatedUser) IsAdmin() bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		return false
	}
	return false
}

// PendingChallenge is the session's reference to an emailed code. The code
// itself lives only in the server-side Challenge record with the same ID.
type PendingChallenge struct {
	ID      string
	UserID  int64
	Email   string
	Role    Role
	Expires time.Time
}

// Expired reports whether the challenge can no longer be verified at now.
func (p *PendingChallenge) Expired(now time.Time) bool {
	return !now.Before(p.Expires)
}

// Challenge is the server-side record of a pending challenge. Only the hash of
// the code is stored; deleting the record consumes the challenge.
type Challenge struct {
	ID       string
	UserID   int64
	CodeHash string
	Expires  time.Time
}

// ChallengeRepository keeps challenge records until they are consumed or expire.
type ChallengeRepository interface {
	SaveChallenge(ctx context.Context, c *Challenge) error
	// GetChallenge returns nil, nil when the record is gone.
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	// DeleteChallenge reports whether a record was removed.
	DeleteChallenge(ctx context.Context, id string) (bool, error)
}

// SessionState is the per-browser record loaded before and saved after every request.
type SessionState struct {
	User                  *AuthenticatedUser
	Pending2FA            *PendingChallenge
	PendingPasswordChange *PendingChallenge
}

// Authenticated reports whether the user slot is set.
func (s *SessionState) Authenticated() bool {
	return s != nil && s.User != nil
}

// Conflicting reports the illegal state of both challenge kinds pending at once.
func (s *SessionState) Conflicting() bool {
	return s.Pending2FA != nil && s.PendingPasswordChange != nil
}

// Clear empties every slot.
func (s *SessionState) Clear() {
	s.User = nil
	s.Pending2FA = nil
	s.PendingPasswordChange = nil
}
