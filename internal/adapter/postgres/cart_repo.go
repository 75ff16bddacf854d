package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bookstore/internal/domain"
)

var errNoCart = errors.New("postgres: user has no cart")

const upsertCartSQL = `INSERT INTO shopping_carts (user_id) VALUES ($1)
	ON CONFLICT (user_id) DO UPDATE SET updated_at = now() RETURNING id`

// WithinCart runs fn in a transaction holding the cart row lock, so mutations
// of the same cart are serialized. The unique user_id makes concurrent first
// calls converge on one cart row.
func (d *DB) WithinCart(ctx context.Context, userID int64, create bool, fn func(tx domain.CartTx) error) (err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cartID int64
	if create {
		err = tx.QueryRowContext(ctx, upsertCartSQL, userID).Scan(&cartID)
	} else {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM shopping_carts WHERE user_id = $1 FOR UPDATE", userID,
		).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		}
	}
	if err != nil {
		return mapErr(err)
	}

	if err = fn(&cartTx{ctx: ctx, tx: tx, cartID: cartID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListCartLines returns the user's items joined with live book data, ordered by title.
func (d *DB) ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT b.id, b.title, b.author, g.name, b.price, i.quantity, b.stock_quantity,
		       COALESCE(bi.image_base64, '')
		FROM shopping_carts c
		JOIN shopping_cart_items i ON i.cart_id = c.id
		JOIN books b ON b.id = i.book_id
		JOIN genres g ON g.id = b.genre_id
		LEFT JOIN book_images bi ON bi.book_id = b.id
		WHERE c.user_id = $1
		ORDER BY b.title, b.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.BookID, &l.Title, &l.Author, &l.Genre, &l.Price,
			&l.Quantity, &l.StockQuantity, &l.ImageBase64); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type cartTx struct {
	ctx    context.Context
	tx     *sql.Tx
	cartID int64
}

func (c *cartTx) Book(bookID int64) (*domain.Book, error) {
	var b domain.Book
	err := c.tx.QueryRowContext(c.ctx,
		"SELECT id, title, author, genre_id, price, stock_quantity FROM books WHERE id = $1 FOR SHARE",
		bookID,
	).Scan(&b.ID, &b.Title, &b.Author, &b.GenreID, &b.Price, &b.StockQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *cartTx) Quantity(bookID int64) (int, bool, error) {
	if c.cartID == 0 {
		return 0, false, nil
	}
	var qty int
	err := c.tx.QueryRowContext(c.ctx,
		"SELECT quantity FROM shopping_cart_items WHERE cart_id = $1 AND book_id = $2",
		c.cartID, bookID,
	).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

func (c *cartTx) SetQuantity(bookID int64, qty int) error {
	if c.cartID == 0 {
		return errNoCart
	}
	_, err := c.tx.ExecContext(c.ctx,
		`INSERT INTO shopping_cart_items (cart_id, book_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (cart_id, book_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`,
		c.cartID, bookID, qty,
	)
	return mapErr(err)
}

func (c *cartTx) RemoveItem(bookID int64) error {
	if c.cartID == 0 {
		return nil
	}
	_, err := c.tx.ExecContext(c.ctx,
		"DELETE FROM shopping_cart_items WHERE cart_id = $1 AND book_id = $2", c.cartID, bookID)
	return err
}

func (c *cartTx) Clear() error {
	if c.cartID == 0 {
		return nil
	}
	_, err := c.tx.ExecContext(c.ctx, "DELETE FROM shopping_cart_items WHERE cart_id = $1", c.cartID)
	return err
}
