package domain

import (
	"context"
	"time"
)

// Genre groups books and may be featured in the spotlight.
type Genre struct {
	ID        int64     `json:"id"`
	Name      string    `json:"genre"`
	Spotlight bool      `json:"spotlight"`
	Icon      string    `json:"genre_icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Book is a catalog entry. StockQuantity bounds cart quantities.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	GenreID       int64     `json:"genreId"`
	Genre         string    `json:"genre,omitempty"`
	ISBN          string    `json:"isbn"`
	Publisher     string    `json:"publisher"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stockQuantity"`
	ImageBase64   string    `json:"image_base64,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// BookFilter narrows a book listing.
type BookFilter struct {
	Search  string
	GenreID int64
	Offset  int
	Limit   int
}

// CatalogRepository is the port for books, genres and book images.
// Lookups return nil, nil when no row matches; mutations report whether a row was touched.
type CatalogRepository interface {
	ListBooks(ctx context.Context, f BookFilter) ([]Book, int, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	SpotlightBooks(ctx context.Context, limit int) ([]Book, error)
	CreateBook(ctx context.Context, b *Book) (*Book, error)
	UpdateBook(ctx context.Context, b *Book) (bool, error)
	DeleteBook(ctx context.Context, id int64) (bool, error)
	SetBookImage(ctx context.Context, bookID int64, imageBase64 string) (bool, error)

	ListGenres(ctx context.Context, offset, limit int) ([]Genre, int, error)
	GetGenre(ctx context.Context, id int64) (*Genre, error)
	CreateGenre(ctx context.Context, g *Genre) (*Genre, error)
	UpdateGenre(ctx context.Context, g *Genre) (bool, error)
	DeleteGenre(ctx context.Context, id int64) (bool, error)
}
