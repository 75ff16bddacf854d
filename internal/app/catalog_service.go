package app

import (
	"context"
	"strings"

	"bookstore/internal/domain"
)

const spotlightLimit = 12

// CatalogService serves the public read paths over books and genres.
type CatalogService struct {
	repo domain.CatalogRepository
}

// NewCatalogService creates a CatalogService backed by the given repository.
func NewCatalogService(repo domain.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

// Browse returns one page of books matching the search text and genre.
// A zero genreID matches every genre.
func (s *CatalogService) Browse(ctx context.Context, search string, genreID int64, req domain.PageRequest) (domain.Page[domain.Book], error) {
	req = req.Normalize()
	books, total, err := s.repo.ListBooks(ctx, domain.BookFilter{
		Search:  strings.TrimSpace(search),
		GenreID: genreID,
		Offset:  req.Offset(),
		Limit:   req.PageSize,
	})
	if err != nil {
		return domain.Page[domain.Book]{}, dependency("list books", err)
	}
	return domain.NewPage(books, req, total), nil
}

// Book returns a single book including its image.
func (s *CatalogService) Book(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, dependency("get book", err)
	}
	if b == nil {
		return nil, ErrBookNotFound
	}
	return b, nil
}

// Genres returns every genre.
func (s *CatalogService) Genres(ctx context.Context) ([]domain.Genre, error) {
	genres, _, err := s.repo.ListGenres(ctx, 0, 0)
	if err != nil {
		return nil, dependency("list genres", err)
	}
	if genres == nil {
		genres = []domain.Genre{}
	}
	return genres, nil
}

// Spotlight returns books from genres flagged as spotlight.
func (s *CatalogService) Spotlight(ctx context.Context) ([]domain.Book, error) {
	books, err := s.repo.SpotlightBooks(ctx, spotlightLimit)
	if err != nil {
		return nil, dependency("spotlight books", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}
