package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/domain"
)

const userColumns = "id, first_name, last_name, email, password_hash, role, two_factor_enabled, created_at, updated_at"

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role,
		&u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if u.Role, err = domain.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	return &u, nil
}

func (d *DB) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.getUser(ctx, "lower(email) = lower($1)", email)
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return d.getUser(ctx, "id = $1", id)
}

// Create creates a new user.
func (d *DB) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	created, err := scanUser(d.sql.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name, email, password_hash, role, two_factor_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+userColumns,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role.String(), u.TwoFactorEnabled,
	))
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

// Update stores names, email, role and 2FA flag.
func (d *DB) Update(ctx context.Context, u *domain.User) (bool, error) {
	return affected(d.sql.ExecContext(ctx,
		`UPDATE users SET first_name = $1, last_name = $2, email = $3, role = $4, two_factor_enabled = $5, updated_at = now()
		 WHERE id = $6`,
		u.FirstName, u.LastName, u.Email, u.Role.String(), u.TwoFactorEnabled, u.ID,
	))
}

// UpdatePassword replaces a user's password hash.
func (d *DB) UpdatePassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	return affected(d.sql.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2",
		passwordHash, id,
	))
}

// List returns one window of users ordered by id, with the total count.
func (d *DB) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	total, err := d.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// Count returns the total number of users.
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
