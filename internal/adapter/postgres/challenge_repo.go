package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bookstore/internal/domain"
)

var _ domain.ChallengeRepository = (*DB)(nil)

// SaveChallenge stores a challenge record and prunes expired ones.
func (d *DB) SaveChallenge(ctx context.Context, c *domain.Challenge) error {
	if _, err := d.sql.ExecContext(ctx, "DELETE FROM auth_challenges WHERE expires_at < now()"); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx,
		"INSERT INTO auth_challenges (id, user_id, code_hash, expires_at) VALUES ($1, $2, $3, $4)",
		c.ID, c.UserID, c.CodeHash, c.Expires.UTC())
	return mapErr(err)
}

// GetChallenge returns nil, nil when no record exists.
func (d *DB) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := d.sql.QueryRowContext(ctx,
		"SELECT id, user_id, code_hash, expires_at FROM auth_challenges WHERE id = $1", id,
	).Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteChallenge reports whether a record was removed. Only one caller can
// win the delete for a given id.
func (d *DB) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	return affected(d.sql.ExecContext(ctx, "DELETE FROM auth_challenges WHERE id = $1", id))
}
