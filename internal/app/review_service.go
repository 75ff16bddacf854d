package app

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"bookstore/internal/domain"

	"go.uber.org/zap"
)

const maxCommentLength = 2000

var (
	// ErrReviewNotFound indicates that the review does not exist.
	ErrReviewNotFound = domain.NewError(domain.KindNotFound, "review not found")
	errInvalidRating  = domain.NewError(domain.KindValidation, "rating must be between 1 and 5")
	errCommentTooLong = domain.NewError(domain.KindValidation, "comment is too long")
)

// ReviewService manages book reviews.
type ReviewService struct {
	reviews domain.ReviewRepository
	catalog domain.CatalogRepository
	now     func() time.Time
	log     *zap.Logger
}

// NewReviewService creates a ReviewService.
func NewReviewService(reviews domain.ReviewRepository, catalog domain.CatalogRepository, opts ...Option) *ReviewService {
	o := buildOptions(opts)
	return &ReviewService{reviews: reviews, catalog: catalog, now: o.now, log: o.log}
}

// ForBook returns a book's reviews with their average rating rounded to one decimal.
func (s *ReviewService) ForBook(ctx context.Context, bookID int64) (domain.ReviewSummary, error) {
	list, err := s.reviews.ListReviewsByBook(ctx, bookID)
	if err != nil {
		return domain.ReviewSummary{}, dependency("list reviews", err)
	}
	if list == nil {
		list = []domain.Review{}
	}

	sum := 0
	for _, r := range list {
		sum += r.Rating
	}
	summary := domain.ReviewSummary{Reviews: list, Count: len(list)}
	if len(list) > 0 {
		summary.AvgRating = math.Round(float64(sum)/float64(len(list))*10) / 10
	}
	return summary, nil
}

// Post records a review by the session user.
func (s *ReviewService) Post(ctx context.Context, actor *domain.AuthenticatedUser, bookID int64, rating int, comment string) (*domain.Review, error) {
	if actor == nil {
		return nil, ErrNotAuthenticated
	}
	if rating < 1 || rating > 5 {
		return nil, errInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, errCommentTooLong
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, dependency("get book", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	r, err := s.reviews.CreateReview(ctx, &domain.Review{
		UserID:     actor.ID,
		BookID:     bookID,
		Rating:     rating,
		Comment:    comment,
		DatePosted: s.now().UTC(),
	})
	if err != nil {
		return nil, dependency("create review", err)
	}
	return r, nil
}

// Delete removes a review. Only its author or an admin may do so.
func (s *ReviewService) Delete(ctx context.Context, actor *domain.AuthenticatedUser, id int64) error {
	if actor == nil {
		return ErrNotAuthenticated
	}
	r, err := s.reviews.GetReview(ctx, id)
	if err != nil {
		return dependency("get review", err)
	}
	if r == nil {
		return ErrReviewNotFound
	}
	if r.UserID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}

	ok, err := s.reviews.DeleteReview(ctx, id)
	if err != nil {
		return dependency("delete review", err)
	}
	if !ok {
		return ErrReviewNotFound
	}
	s.log.Info("review deleted", zap.Int64("review_id", id), zap.Int64("by_user_id", actor.ID))
	return nil
}
