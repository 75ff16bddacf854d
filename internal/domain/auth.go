// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned by repositories when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// ErrInUse is returned by repositories when a row is still referenced elsewhere.
var ErrInUse = errors.New("record in use")

// Role is the closed set of account roles.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAdmin
)

// ParseRole maps the stored role name to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// MarshalText renders the role name in JSON payloads.
func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleUser, RoleAdmin:
		return []byte(r.String()), nil
	}
	return nil, fmt.Errorf("invalid role %d", r)
}

// UnmarshalText accepts only known role names.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// User represents a registered account.
type User struct {
	ID               int64     `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Snapshot returns the identity stored in the session user slot.
func (u *User) Snapshot() *AuthenticatedUser {
	return &AuthenticatedUser{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// UserRepository defines the port for user persistence operations.
// Lookups return nil, nil when no row matches.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
	Update(ctx context.Context, u *User) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) (bool, error)
	List(ctx context.Context, offset, limit int) ([]User, int, error)
	Count(ctx context.Context) (int, error)
}
