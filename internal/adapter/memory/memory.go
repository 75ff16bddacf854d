// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bookstore/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu         sync.Mutex
	users      []*domain.User
	genres     []*domain.Genre
	books      []*domain.Book
	reviews    []*domain.Review
	carts      map[int64]int64         // user id -> cart id
	cartItems  map[int64]map[int64]int // cart id -> book id -> quantity
	challenges map[string]domain.Challenge

	userIDCounter   int64
	genreIDCounter  int64
	bookIDCounter   int64
	reviewIDCounter int64
	cartIDCounter   int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		carts:      make(map[int64]int64),
		cartItems:  make(map[int64]map[int64]int),
		challenges: make(map[string]domain.Challenge),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.CatalogRepository = (*DB)(nil)
var _ domain.ReviewRepository = (*DB)(nil)
var _ domain.CartRepository = (*DB)(nil)
var _ domain.ChallengeRepository = (*DB)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u := db.userByID(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, domain.ErrDuplicate
		}
	}
	db.userIDCounter++
	now := time.Now().UTC()
	stored := *u
	stored.ID = db.userIDCounter
	stored.CreatedAt = now
	stored.UpdatedAt = now
	db.users = append(db.users, &stored)
	cp := stored
	return &cp, nil
}

// Update stores names, email, role and 2FA flag.
func (db *DB) Update(ctx context.Context, u *domain.User) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := db.userByID(u.ID)
	if stored == nil {
		return false, nil
	}
	for _, other := range db.users {
		if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
			return false, domain.ErrDuplicate
		}
	}
	stored.FirstName = u.FirstName
	stored.LastName = u.LastName
	stored.Email = u.Email
	stored.Role = u.Role
	stored.TwoFactorEnabled = u.TwoFactorEnabled
	stored.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdatePassword replaces a user's password hash.
func (db *DB) UpdatePassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := db.userByID(id)
	if stored == nil {
		return false, nil
	}
	stored.PasswordHash = passwordHash
	stored.UpdatedAt = time.Now().UTC()
	return true, nil
}

// List returns users ordered by id.
func (db *DB) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.User, 0, len(db.users))
	for _, u := range db.users {
		out = append(out, *u)
	}
	return window(out, offset, limit), len(out), nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// DeleteUser removes a user. Only used to simulate accounts disappearing.
func (db *DB) DeleteUser(id int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, u := range db.users {
		if u.ID == id {
			db.users = append(db.users[:i], db.users[i+1:]...)
			return
		}
	}
}

func (db *DB) userByID(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// --- CatalogRepository ---

// ListBooks lists books matching the filter, ordered by title.
func (db *DB) ListBooks(ctx context.Context, f domain.BookFilter) ([]domain.Book, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	search := strings.ToLower(f.Search)
	var out []domain.Book
	for _, b := range db.books {
		if f.GenreID != 0 && b.GenreID != f.GenreID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) &&
			!strings.Contains(strings.ToLower(b.ISBN), search) {
			continue
		}
		cp := db.withGenre(*b)
		cp.ImageBase64 = ""
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return window(out, f.Offset, f.Limit), len(out), nil
}

// GetBook retrieves a book with its image.
func (db *DB) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if b := db.bookByID(id); b != nil {
		cp := db.withGenre(*b)
		return &cp, nil
	}
	return nil, nil
}

// SpotlightBooks returns books whose genre is in the spotlight.
func (db *DB) SpotlightBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Book
	for _, b := range db.books {
		g := db.genreByID(b.GenreID)
		if g == nil || !g.Spotlight {
			continue
		}
		out = append(out, db.withGenre(*b))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CreateBook adds a book.
func (db *DB) CreateBook(ctx context.Context, b *domain.Book) (*domain.Book, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.isbnTaken(b.ISBN, 0) {
		return nil, domain.ErrDuplicate
	}
	db.bookIDCounter++
	now := time.Now().UTC()
	stored := *b
	stored.ID = db.bookIDCounter
	stored.CreatedAt = now
	stored.UpdatedAt = now
	db.books = append(db.books, &stored)
	cp := db.withGenre(stored)
	return &cp, nil
}

// UpdateBook replaces a book's fields except its image.
func (db *DB) UpdateBook(ctx context.Context, b *domain.Book) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := db.bookByID(b.ID)
	if stored == nil {
		return false, nil
	}
	if db.isbnTaken(b.ISBN, b.ID) {
		return false, domain.ErrDuplicate
	}
	image, created := stored.ImageBase64, stored.CreatedAt
	*stored = *b
	stored.ImageBase64 = image
	stored.CreatedAt = created
	stored.UpdatedAt = time.Now().UTC()
	return true, nil
}

// DeleteBook removes a book along with its cart items and reviews.
func (db *DB) DeleteBook(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, b := range db.books {
		if b.ID != id {
			continue
		}
		db.books = append(db.books[:i], db.books[i+1:]...)
		for _, items := range db.cartItems {
			delete(items, id)
		}
		kept := db.reviews[:0]
		for _, r := range db.reviews {
			if r.BookID != id {
				kept = append(kept, r)
			}
		}
		db.reviews = kept
		return true, nil
	}
	return false, nil
}

// SetBookImage stores a book's base64 image.
func (db *DB) SetBookImage(ctx context.Context, bookID int64, imageBase64 string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	b := db.bookByID(bookID)
	if b == nil {
		return false, nil
	}
	b.ImageBase64 = imageBase64
	return true, nil
}

// SetStock overwrites a book's stock quantity.
func (db *DB) SetStock(bookID int64, qty int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if b := db.bookByID(bookID); b != nil {
		b.StockQuantity = qty
	}
}

// ListGenres lists genres by name. A zero limit returns all of them.
func (db *DB) ListGenres(ctx context.Context, offset, limit int) ([]domain.Genre, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.Genre, 0, len(db.genres))
	for _, g := range db.genres {
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return window(out, offset, limit), len(out), nil
}

// GetGenre retrieves a genre.
func (db *DB) GetGenre(ctx context.Context, id int64) (*domain.Genre, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if g := db.genreByID(id); g != nil {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

// CreateGenre adds a genre.
func (db *DB) CreateGenre(ctx context.Context, g *domain.Genre) (*domain.Genre, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.genres {
		if strings.EqualFold(existing.Name, g.Name) {
			return nil, domain.ErrDuplicate
		}
	}
	db.genreIDCounter++
	stored := *g
	stored.ID = db.genreIDCounter
	stored.CreatedAt = time.Now().UTC()
	db.genres = append(db.genres, &stored)
	cp := stored
	return &cp, nil
}

// UpdateGenre replaces a genre's fields.
func (db *DB) UpdateGenre(ctx context.Context, g *domain.Genre) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := db.genreByID(g.ID)
	if stored == nil {
		return false, nil
	}
	for _, other := range db.genres {
		if other.ID != g.ID && strings.EqualFold(other.Name, g.Name) {
			return false, domain.ErrDuplicate
		}
	}
	stored.Name = g.Name
	stored.Spotlight = g.Spotlight
	stored.Icon = g.Icon
	return true, nil
}

// DeleteGenre removes a genre no book references.
func (db *DB) DeleteGenre(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, b := range db.books {
		if b.GenreID == id {
			return false, domain.ErrInUse
		}
	}
	for i, g := range db.genres {
		if g.ID == id {
			db.genres = append(db.genres[:i], db.genres[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) bookByID(id int64) *domain.Book {
	for _, b := range db.books {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (db *DB) genreByID(id int64) *domain.Genre {
	for _, g := range db.genres {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (db *DB) withGenre(b domain.Book) domain.Book {
	if g := db.genreByID(b.GenreID); g != nil {
		b.Genre = g.Name
	}
	return b
}

func (db *DB) isbnTaken(isbn string, exceptID int64) bool {
	for _, b := range db.books {
		if b.ID != exceptID && b.ISBN == isbn {
			return true
		}
	}
	return false
}

// --- ReviewRepository ---

// CreateReview stores a review.
func (db *DB) CreateReview(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.bookByID(r.BookID) == nil || db.userByID(r.UserID) == nil {
		return nil, errors.New("memory: review references missing row")
	}
	db.reviewIDCounter++
	stored := *r
	stored.ID = db.reviewIDCounter
	db.reviews = append(db.reviews, &stored)
	cp := db.withReviewer(stored)
	return &cp, nil
}

// GetReview retrieves a review.
func (db *DB) GetReview(ctx context.Context, id int64) (*domain.Review, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range db.reviews {
		if r.ID == id {
			cp := db.withReviewer(*r)
			return &cp, nil
		}
	}
	return nil, nil
}

// ListReviewsByBook returns a book's reviews, newest first.
func (db *DB) ListReviewsByBook(ctx context.Context, bookID int64) ([]domain.Review, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Review
	for _, r := range db.reviews {
		if r.BookID == bookID {
			out = append(out, db.withReviewer(*r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DatePosted.After(out[j].DatePosted) })
	return out, nil
}

// DeleteReview removes a review.
func (db *DB) DeleteReview(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, r := range db.reviews {
		if r.ID == id {
			db.reviews = append(db.reviews[:i], db.reviews[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) withReviewer(r domain.Review) domain.Review {
	if u := db.userByID(r.UserID); u != nil {
		r.ReviewerName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return r
}

// --- ChallengeRepository ---

// SaveChallenge stores a challenge record. Records live until deleted; expiry
// is checked by the caller against its own clock.
func (db *DB) SaveChallenge(ctx context.Context, c *domain.Challenge) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.challenges[c.ID] = *c
	return nil
}

// GetChallenge retrieves a challenge record.
func (db *DB) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.challenges[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// DeleteChallenge removes a challenge record.
func (db *DB) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.challenges[id]; !ok {
		return false, nil
	}
	delete(db.challenges, id)
	return true, nil
}

// ChallengeCount returns the number of stored challenge records.
func (db *DB) ChallengeCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.challenges)
}

// --- CartRepository ---

// WithinCart runs fn while holding the database lock, so the whole mutation is atomic.
func (db *DB) WithinCart(ctx context.Context, userID int64, create bool, fn func(tx domain.CartTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&cartTx{db: db, cartID: db.cartFor(userID, create)})
}

// ListCartLines returns the user's items joined with live book data, ordered by title.
func (db *DB) ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cartID, ok := db.carts[userID]
	if !ok {
		return nil, nil
	}
	var out []domain.CartLine
	for bookID, qty := range db.cartItems[cartID] {
		b := db.bookByID(bookID)
		if b == nil {
			continue
		}
		full := db.withGenre(*b)
		out = append(out, domain.CartLine{
			BookID:        b.ID,
			Title:         b.Title,
			Author:        b.Author,
			Genre:         full.Genre,
			Price:         b.Price,
			Quantity:      qty,
			StockQuantity: b.StockQuantity,
			ImageBase64:   b.ImageBase64,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].BookID < out[j].BookID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// CartCount returns the number of carts, for asserting one cart per user.
func (db *DB) CartCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.carts)
}

// cartFor returns the cart id of userID, or 0 when it has none and create is false.
func (db *DB) cartFor(userID int64, create bool) int64 {
	if id, ok := db.carts[userID]; ok {
		return id
	}
	if !create {
		return 0
	}
	db.cartIDCounter++
	db.carts[userID] = db.cartIDCounter
	db.cartItems[db.cartIDCounter] = make(map[int64]int)
	return db.cartIDCounter
}

// cartTx runs with db.mu already held.
type cartTx struct {
	db     *DB
	cartID int64
}

func (tx *cartTx) Book(bookID int64) (*domain.Book, error) {
	if b := tx.db.bookByID(bookID); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (tx *cartTx) Quantity(bookID int64) (int, bool, error) {
	qty, ok := tx.db.cartItems[tx.cartID][bookID]
	return qty, ok, nil
}

func (tx *cartTx) SetQuantity(bookID int64, qty int) error {
	items, ok := tx.db.cartItems[tx.cartID]
	if !ok {
		return errors.New("memory: no cart")
	}
	items[bookID] = qty
	return nil
}

func (tx *cartTx) RemoveItem(bookID int64) error {
	delete(tx.db.cartItems[tx.cartID], bookID)
	return nil
}

func (tx *cartTx) Clear() error {
	if items, ok := tx.db.cartItems[tx.cartID]; ok {
		clear(items)
	}
	return nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
