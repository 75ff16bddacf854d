package domain

import (
	"context"
	"time"
)

// Review is a user's rating of a book.
type Review struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	BookID       int64     `json:"bookId"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	DatePosted   time.Time `json:"datePosted"`
	ReviewerName string    `json:"reviewerName,omitempty"`
}

// ReviewSummary aggregates the reviews of one book.
type ReviewSummary struct {
	Reviews   []Review `json:"reviews"`
	AvgRating float64  `json:"avgRating"`
	Count     int      `json:"count"`
}

// ReviewRepository is the port for review persistence.
type ReviewRepository interface {
	CreateReview(ctx context.Context, r *Review) (*Review, error)
	GetReview(ctx context.Context, id int64) (*Review, error)
	ListReviewsByBook(ctx context.Context, bookID int64) ([]Review, error)
	DeleteReview(ctx context.Context, id int64) (bool, error)
}
