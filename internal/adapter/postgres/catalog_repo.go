package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"bookstore/internal/domain"

	sq "github.com/Masterminds/squirrel"
)

var bookColumns = []string{
	"b.id", "b.title", "b.author", "b.genre_id", "g.name", "b.isbn", "b.publisher",
	"b.description", "b.price", "b.stock_quantity", "b.created_at", "b.updated_at",
}

func scanBook(row rowScanner, extra ...any) (*domain.Book, error) {
	var b domain.Book
	dest := []any{
		&b.ID, &b.Title, &b.Author, &b.GenreID, &b.Genre, &b.ISBN, &b.Publisher,
		&b.Description, &b.Price, &b.StockQuantity, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func bookWhere(f domain.BookFilter) sq.And {
	where := sq.And{}
	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		where = append(where, sq.Or{
			sq.ILike{"b.title": like},
			sq.ILike{"b.author": like},
			sq.ILike{"b.isbn": like},
		})
	}
	if f.GenreID != 0 {
		where = append(where, sq.Eq{"b.genre_id": f.GenreID})
	}
	return where
}

func (d *DB) queryBooks(ctx context.Context, q sq.SelectBuilder) ([]domain.Book, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListBooks lists books matching the filter ordered by title, without images.
func (d *DB) ListBooks(ctx context.Context, f domain.BookFilter) ([]domain.Book, int, error) {
	where := bookWhere(f)

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("books b").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := d.sql.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := psql.Select(bookColumns...).
		From("books b").
		Join("genres g ON g.id = b.genre_id").
		Where(where).
		OrderBy("b.title", "b.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit)).Offset(uint64(f.Offset))
	}
	books, err := d.queryBooks(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// GetBook retrieves a book with its image.
func (d *DB) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	query, args, err := psql.Select(append(bookColumns, "COALESCE(bi.image_base64, '')")...).
		From("books b").
		Join("genres g ON g.id = b.genre_id").
		LeftJoin("book_images bi ON bi.book_id = b.id").
		Where(sq.Eq{"b.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var image string
	b, err := scanBook(d.sql.QueryRowContext(ctx, query, args...), &image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.ImageBase64 = image
	return b, nil
}

// SpotlightBooks returns the newest books of spotlight genres.
func (d *DB) SpotlightBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	q := psql.Select(bookColumns...).
		From("books b").
		Join("genres g ON g.id = b.genre_id").
		Where(sq.Eq{"g.spotlight": true}).
		OrderBy("b.created_at DESC", "b.id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return d.queryBooks(ctx, q)
}

// CreateBook adds a book.
func (d *DB) CreateBook(ctx context.Context, b *domain.Book) (*domain.Book, error) {
	created := *b
	err := d.sql.QueryRowContext(ctx,
		`INSERT INTO books (title, author, genre_id, isbn, publisher, description, price, stock_quantity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		b.Title, b.Author, b.GenreID, b.ISBN, b.Publisher, b.Description, b.Price, b.StockQuantity,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &created, nil
}

// UpdateBook replaces a book's fields except its image.
func (d *DB) UpdateBook(ctx context.Context, b *domain.Book) (bool, error) {
	return affected(d.sql.ExecContext(ctx,
		`UPDATE books SET title = $1, author = $2, genre_id = $3, isbn = $4, publisher = $5,
		 description = $6, price = $7, stock_quantity = $8, updated_at = now() WHERE id = $9`,
		b.Title, b.Author, b.GenreID, b.ISBN, b.Publisher, b.Description, b.Price, b.StockQuantity, b.ID,
	))
}

// DeleteBook removes a book; images, reviews and cart items cascade.
func (d *DB) DeleteBook(ctx context.Context, id int64) (bool, error) {
	return affected(d.sql.ExecContext(ctx, "DELETE FROM books WHERE id = $1", id))
}

// SetBookImage stores or replaces a book's image.
func (d *DB) SetBookImage(ctx context.Context, bookID int64, imageBase64 string) (bool, error) {
	ok, err := affected(d.sql.ExecContext(ctx,
		`INSERT INTO book_images (book_id, image_base64) VALUES ($1, $2)
		 ON CONFLICT (book_id) DO UPDATE SET image_base64 = EXCLUDED.image_base64, updated_at = now()`,
		bookID, imageBase64,
	))
	if errors.Is(err, domain.ErrInUse) {
		// Foreign key violation: the book does not exist.
		return false, nil
	}
	return ok, err
}

// ListGenres lists genres by name. A zero limit returns all of them.
func (d *DB) ListGenres(ctx context.Context, offset, limit int) ([]domain.Genre, int, error) {
	var total int
	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM genres").Scan(&total); err != nil {
		return nil, 0, err
	}

	q := psql.Select("id", "name", "spotlight", "icon", "created_at").From("genres").OrderBy("name", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit)).Offset(uint64(offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Genre
	for rows.Next() {
		var g domain.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Spotlight, &g.Icon, &g.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	return out, total, rows.Err()
}

// GetGenre retrieves a genre.
func (d *DB) GetGenre(ctx context.Context, id int64) (*domain.Genre, error) {
	var g domain.Genre
	err := d.sql.QueryRowContext(ctx,
		"SELECT id, name, spotlight, icon, created_at FROM genres WHERE id = $1", id,
	).Scan(&g.ID, &g.Name, &g.Spotlight, &g.Icon, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGenre adds a genre.
func (d *DB) CreateGenre(ctx context.Context, g *domain.Genre) (*domain.Genre, error) {
	created := *g
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO genres (name, spotlight, icon) VALUES ($1, $2, $3) RETURNING id, created_at",
		g.Name, g.Spotlight, g.Icon,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &created, nil
}

// UpdateGenre replaces a genre's fields.
func (d *DB) UpdateGenre(ctx context.Context, g *domain.Genre) (bool, error) {
	return affected(d.sql.ExecContext(ctx,
		"UPDATE genres SET name = $1, spotlight = $2, icon = $3, updated_at = now() WHERE id = $4",
		g.Name, g.Spotlight, g.Icon, g.ID,
	))
}

// DeleteGenre removes a genre. Referenced genres yield domain.ErrInUse.
func (d *DB) DeleteGenre(ctx context.Context, id int64) (bool, error) {
	return affected(d.sql.ExecContext(ctx, "DELETE FROM genres WHERE id = $1", id))
}
