package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bookstore/internal/domain"
)

const reviewSelect = `SELECT r.id, r.user_id, r.book_id, r.rating, r.comment, r.date_posted,
	TRIM(u.first_name || ' ' || u.last_name)
	FROM reviews r JOIN users u ON u.id = r.user_id`

func scanReview(row rowScanner) (*domain.Review, error) {
	var r domain.Review
	if err := row.Scan(&r.ID, &r.UserID, &r.BookID, &r.Rating, &r.Comment, &r.DatePosted, &r.ReviewerName); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReview inserts a review. An unknown book or user yields domain.ErrInUse.
func (d *DB) CreateReview(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO reviews (user_id, book_id, rating, comment) VALUES ($1, $2, $3, $4) RETURNING id",
		r.UserID, r.BookID, r.Rating, r.Comment,
	).Scan(&id)
	if err != nil {
		return nil, mapErr(err)
	}
	return d.GetReview(ctx, id)
}

// GetReview retrieves a review with the reviewer's name.
func (d *DB) GetReview(ctx context.Context, id int64) (*domain.Review, error) {
	r, err := scanReview(d.sql.QueryRowContext(ctx, reviewSelect+" WHERE r.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListReviewsByBook returns the book's reviews, newest first.
func (d *DB) ListReviewsByBook(ctx context.Context, bookID int64) ([]domain.Review, error) {
	rows, err := d.sql.QueryContext(ctx,
		reviewSelect+" WHERE r.book_id = $1 ORDER BY r.date_posted DESC, r.id DESC", bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeleteReview removes a review.
func (d *DB) DeleteReview(ctx context.Context, id int64) (bool, error) {
	return affected(d.sql.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id))
}
