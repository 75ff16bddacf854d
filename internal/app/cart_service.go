package app

import (
	"context"
	"errors"
	"fmt"

	"bookstore/internal/domain"

	"go.uber.org/zap"
)

var (
	// ErrBookNotFound indicates that the referenced book does not exist.
	ErrBookNotFound = domain.NewError(domain.KindNotFound, "book not found")
	// ErrNotEnoughStock indicates that a quantity would exceed the book's stock.
	ErrNotEnoughStock = domain.NewError(domain.KindConflict, "not enough stock")
	// ErrItemNotInCart indicates an update of an item the cart does not hold.
	ErrItemNotInCart = domain.NewError(domain.KindNotFound, "item not in cart")
)

// CartService enforces the stock bound and the add/update/remove semantics of a user's cart.
type CartService struct {
	repo domain.CartRepository
	log  *zap.Logger
}

// NewCartService creates a CartService backed by the given repository.
func NewCartService(repo domain.CartRepository, opts ...Option) *CartService {
	o := buildOptions(opts)
	return &CartService{repo: repo, log: o.log}
}

// Add increases the item's quantity by qty, inserting the item if needed.
// The accumulated quantity must not exceed stock.
func (s *CartService) Add(ctx context.Context, userID, bookID int64, qty int) (int, error) {
	if bookID <= 0 || qty < 1 {
		return 0, ErrInvalidPayload
	}

	var total int
	err := s.repo.WithinCart(ctx, userID, true, func(tx domain.CartTx) error {
		book, err := tx.Book(bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return ErrBookNotFound
		}
		existing, _, err := tx.Quantity(bookID)
		if err != nil {
			return err
		}
		total = existing + qty
		if total > book.StockQuantity {
			return ErrNotEnoughStock
		}
		return tx.SetQuantity(bookID, total)
	})
	if err != nil {
		return 0, s.wrap("add to cart", err)
	}
	return total, nil
}

// Update overwrites the item's quantity. A quantity below 1 removes the item.
func (s *CartService) Update(ctx context.Context, userID, bookID int64, qty int) error {
	if bookID <= 0 {
		return ErrInvalidPayload
	}
	if qty < 1 {
		return s.Remove(ctx, userID, bookID)
	}

	err := s.repo.WithinCart(ctx, userID, false, func(tx domain.CartTx) error {
		book, err := tx.Book(bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return ErrBookNotFound
		}
		if qty > book.StockQuantity {
			return ErrNotEnoughStock
		}
		_, ok, err := tx.Quantity(bookID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrItemNotInCart
		}
		return tx.SetQuantity(bookID, qty)
	})
	return s.wrap("update cart", err)
}

// Remove deletes the item. Removing an absent item succeeds.
func (s *CartService) Remove(ctx context.Context, userID, bookID int64) error {
	if bookID <= 0 {
		return ErrInvalidPayload
	}
	err := s.repo.WithinCart(ctx, userID, false, func(tx domain.CartTx) error {
		return tx.RemoveItem(bookID)
	})
	return s.wrap("remove from cart", err)
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	err := s.repo.WithinCart(ctx, userID, false, func(tx domain.CartTx) error {
		return tx.Clear()
	})
	return s.wrap("clear cart", err)
}

// Read returns the cart's items with live book data. Items whose quantity
// exceeds the current stock are flagged rather than adjusted.
func (s *CartService) Read(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	lines, err := s.repo.ListCartLines(ctx, userID)
	if err != nil {
		return nil, dependency("list cart", err)
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	for i := range lines {
		l := &lines[i]
		l.MaxQuantity = l.StockQuantity
		l.OverStock = l.Quantity > l.StockQuantity
	}
	return lines, nil
}

// wrap passes typed rejections through and turns anything else into a dependency failure.
func (s *CartService) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return dependency(op, err)
}

func dependency(op string, err error) error {
	return domain.Dependency("internal error", fmt.Errorf("%s: %w", op, err))
}
