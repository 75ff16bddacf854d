package domain

import "context"

// CartLine is one cart item joined with live book data.
type CartLine struct {
	BookID        int64   `json:"bookId"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Genre         string  `json:"genre,omitempty"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	StockQuantity int     `json:"stockQuantity"`
	MaxQuantity   int     `json:"maxQuantity"`
	OverStock     bool    `json:"overStock"`
	ImageBase64   string  `json:"image_base64,omitempty"`
}

// CartTx exposes the item operations available inside one atomic cart mutation.
// Implementations are bound to the context passed to WithinCart.
type CartTx interface {
	// Book returns the book with its current stock, or nil if it does not exist.
	Book(bookID int64) (*Book, error)
	// Quantity returns the stored quantity and whether the item exists.
	Quantity(bookID int64) (int, bool, error)
	SetQuantity(bookID int64, qty int) error
	RemoveItem(bookID int64) error
	Clear() error
}

// CartRepository is the port for cart persistence. There is exactly one cart per user.
type CartRepository interface {
	// WithinCart runs fn atomically against the user's cart. When create is false and the
	// user has no cart, fn sees an empty cart and SetQuantity fails.
	WithinCart(ctx context.Context, userID int64, create bool, fn func(tx CartTx) error) error
	ListCartLines(ctx context.Context, userID int64) ([]CartLine, error)
}
