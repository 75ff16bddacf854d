package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bookstore/internal/domain"
	"bookstore/internal/imaging"

	"go.uber.org/zap"
)

var (
	// ErrGenreNotFound indicates that the genre does not exist.
	ErrGenreNotFound = domain.NewError(domain.KindNotFound, "genre not found")
	// ErrGenreInUse indicates that books still reference the genre.
	ErrGenreInUse = domain.NewError(domain.KindConflict, "genre still has books")
	// ErrDuplicateISBN indicates that another book already uses the ISBN.
	ErrDuplicateISBN = domain.NewError(domain.KindConflict, "isbn already exists")
	// ErrDuplicateGenre indicates that a genre of that name exists.
	ErrDuplicateGenre = domain.NewError(domain.KindConflict, "genre already exists")
	errInvalidImage   = domain.NewError(domain.KindValidation, "image must be a jpeg, png or gif")
)

// UserInput carries the admin-editable fields of an account.
type UserInput struct {
	FirstName        string
	LastName         string
	Email            string
	Password         string
	Role             domain.Role
	TwoFactorEnabled bool
}

// BookInput carries the editable fields of a book.
type BookInput struct {
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	GenreID       int64   `json:"genreId"`
	ISBN          string  `json:"isbn"`
	Publisher     string  `json:"publisher"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stockQuantity"`
}

// GenreInput carries the editable fields of a genre.
type GenreInput struct {
	Name      string `json:"genre"`
	Spotlight bool   `json:"spotlight"`
	Icon      string `json:"genre_icon"`
}

// AdminService implements the admin console operations. Callers are
// expected to have passed the admin gate.
type AdminService struct {
	users   domain.UserRepository
	catalog domain.CatalogRepository
	reviews *ReviewService
	hasher  passwordHasher
	log     *zap.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(users domain.UserRepository, catalog domain.CatalogRepository, reviews *ReviewService, opts ...Option) *AdminService {
	o := buildOptions(opts)
	return &AdminService{
		users:   users,
		catalog: catalog,
		reviews: reviews,
		hasher:  newPasswordHasher(o.bcryptCost),
		log:     o.log,
	}
}

// --- users ---

// Users lists accounts one page at a time.
func (s *AdminService) Users(ctx context.Context, req domain.PageRequest) (domain.Page[domain.User], error) {
	req = req.Normalize()
	users, total, err := s.users.List(ctx, req.Offset(), req.PageSize)
	if err != nil {
		return domain.Page[domain.User]{}, dependency("list users", err)
	}
	return domain.NewPage(users, req, total), nil
}

// CreateUser creates an account with an explicit role.
func (s *AdminService) CreateUser(ctx context.Context, in UserInput) (*domain.User, error) {
	u, err := s.validUser(in)
	if err != nil {
		return nil, err
	}
	if !validPassword(in.Password) {
		return nil, errPasswordTooShort
	}
	if u.PasswordHash, err = s.hasher.hash(in.Password); err != nil {
		return nil, dependency("hash password", err)
	}

	created, err := s.users.Create(ctx, u)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, dependency("create user", err)
	}
	s.log.Info("admin created user", zap.Int64("user_id", created.ID), zap.Stringer("role", created.Role))
	return created, nil
}

// UpdateUser changes names, email, role and 2FA. A non-empty password is also replaced.
func (s *AdminService) UpdateUser(ctx context.Context, id int64, in UserInput) (*domain.User, error) {
	u, err := s.validUser(in)
	if err != nil {
		return nil, err
	}
	existing, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, dependency("get user", err)
	}
	if existing == nil {
		return nil, ErrUserNotFound
	}

	u.ID = id
	u.PasswordHash = existing.PasswordHash
	u.CreatedAt = existing.CreatedAt
	ok, err := s.users.Update(ctx, u)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, dependency("update user", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	if in.Password != "" {
		if !validPassword(in.Password) {
			return nil, errPasswordTooShort
		}
		hash, err := s.hasher.hash(in.Password)
		if err != nil {
			return nil, dependency("hash password", err)
		}
		if _, err := s.users.UpdatePassword(ctx, id, hash); err != nil {
			return nil, dependency("update password", err)
		}
	}
	return u, nil
}

func (s *AdminService) validUser(in UserInput) (*domain.User, error) {
	u := &domain.User{
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Email:            normalizeEmail(in.Email),
		Role:             in.Role,
		TwoFactorEnabled: in.TwoFactorEnabled,
	}
	if u.FirstName == "" || u.LastName == "" {
		return nil, domain.NewError(domain.KindValidation, "first and last name are required")
	}
	if err := validateEmail(u.Email); err != nil {
		return nil, err
	}
	switch u.Role {
	case domain.RoleUser, domain.RoleAdmin:
	default:
		return nil, domain.NewError(domain.KindValidation, "invalid role")
	}
	return u, nil
}

// --- genres ---

// Genres lists genres one page at a time.
func (s *AdminService) Genres(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Genre], error) {
	req = req.Normalize()
	genres, total, err := s.catalog.ListGenres(ctx, req.Offset(), req.PageSize)
	if err != nil {
		return domain.Page[domain.Genre]{}, dependency("list genres", err)
	}
	return domain.NewPage(genres, req, total), nil
}

// CreateGenre adds a genre.
func (s *AdminService) CreateGenre(ctx context.Context, in GenreInput) (*domain.Genre, error) {
	g, err := validGenre(in)
	if err != nil {
		return nil, err
	}
	created, err := s.catalog.CreateGenre(ctx, g)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrDuplicateGenre
	}
	if err != nil {
		return nil, dependency("create genre", err)
	}
	return created, nil
}

// UpdateGenre replaces a genre's fields.
func (s *AdminService) UpdateGenre(ctx context.Context, id int64, in GenreInput) (*domain.Genre, error) {
	g, err := validGenre(in)
	if err != nil {
		return nil, err
	}
	g.ID = id
	ok, err := s.catalog.UpdateGenre(ctx, g)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrDuplicateGenre
	}
	if err != nil {
		return nil, dependency("update genre", err)
	}
	if !ok {
		return nil, ErrGenreNotFound
	}
	return g, nil
}

// DeleteGenre removes a genre that no book references.
func (s *AdminService) DeleteGenre(ctx context.Context, id int64) error {
	ok, err := s.catalog.DeleteGenre(ctx, id)
	if errors.Is(err, domain.ErrInUse) {
		return ErrGenreInUse
	}
	if err != nil {
		return dependency("delete genre", err)
	}
	if !ok {
		return ErrGenreNotFound
	}
	return nil
}

func validGenre(in GenreInput) (*domain.Genre, error) {
	g := &domain.Genre{
		Name:      strings.TrimSpace(in.Name),
		Spotlight: in.Spotlight,
		Icon:      strings.TrimSpace(in.Icon),
	}
	if g.Name == "" {
		return nil, domain.NewError(domain.KindValidation, "genre name is required")
	}
	return g, nil
}

// --- books ---

// Books lists books one page at a time.
func (s *AdminService) Books(ctx context.Context, search string, req domain.PageRequest) (domain.Page[domain.Book], error) {
	req = req.Normalize()
	books, total, err := s.catalog.ListBooks(ctx, domain.BookFilter{
		Search: strings.TrimSpace(search),
		Offset: req.Offset(),
		Limit:  req.PageSize,
	})
	if err != nil {
		return domain.Page[domain.Book]{}, dependency("list books", err)
	}
	return domain.NewPage(books, req, total), nil
}

// CreateBook adds a book to the catalog.
func (s *AdminService) CreateBook(ctx context.Context, in BookInput) (*domain.Book, error) {
	b, err := s.validBook(ctx, in)
	if err != nil {
		return nil, err
	}
	created, err := s.catalog.CreateBook(ctx, b)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrDuplicateISBN
	}
	if err != nil {
		return nil, dependency("create book", err)
	}
	s.log.Info("book created", zap.Int64("book_id", created.ID))
	return created, nil
}

// UpdateBook replaces a book's fields. The image is left untouched.
func (s *AdminService) UpdateBook(ctx context.Context, id int64, in BookInput) (*domain.Book, error) {
	b, err := s.validBook(ctx, in)
	if err != nil {
		return nil, err
	}
	b.ID = id
	ok, err := s.catalog.UpdateBook(ctx, b)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrDuplicateISBN
	}
	if err != nil {
		return nil, dependency("update book", err)
	}
	if !ok {
		return nil, ErrBookNotFound
	}
	return b, nil
}

// DeleteBook removes a book.
func (s *AdminService) DeleteBook(ctx context.Context, id int64) error {
	ok, err := s.catalog.DeleteBook(ctx, id)
	if err != nil {
		return dependency("delete book", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	s.log.Info("book deleted", zap.Int64("book_id", id))
	return nil
}

// SetBookImage scales the uploaded image and stores it with the book.
func (s *AdminService) SetBookImage(ctx context.Context, id int64, r io.Reader) error {
	encoded, err := imaging.EncodeBase64JPEG(r, imaging.MaxWidth)
	if errors.Is(err, imaging.ErrUnsupported) {
		return errInvalidImage
	}
	if err != nil {
		return dependency("encode image", err)
	}
	ok, err := s.catalog.SetBookImage(ctx, id, encoded)
	if err != nil {
		return dependency("store image", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	return nil
}

func (s *AdminService) validBook(ctx context.Context, in BookInput) (*domain.Book, error) {
	b := &domain.Book{
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		GenreID:       in.GenreID,
		ISBN:          strings.ReplaceAll(strings.TrimSpace(in.ISBN), "-", ""),
		Publisher:     strings.TrimSpace(in.Publisher),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
	}
	switch {
	case b.Title == "" || b.Author == "":
		return nil, domain.NewError(domain.KindValidation, "title and author are required")
	case !validISBN(b.ISBN):
		return nil, domain.NewError(domain.KindValidation, "isbn must be 13 digits")
	case b.Price < 0:
		return nil, domain.NewError(domain.KindValidation, "price must not be negative")
	case b.StockQuantity < 0:
		return nil, domain.NewError(domain.KindValidation, "stock must not be negative")
	case b.GenreID <= 0:
		return nil, domain.NewError(domain.KindValidation, "genre is required")
	}

	g, err := s.catalog.GetGenre(ctx, b.GenreID)
	if err != nil {
		return nil, dependency("get genre", err)
	}
	if g == nil {
		return nil, ErrGenreNotFound
	}
	b.Genre = g.Name
	return b, nil
}

func validISBN(s string) bool {
	if len(s) != 13 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// --- reviews ---

// Reviews lists the reviews of one book.
func (s *AdminService) Reviews(ctx context.Context, bookID int64) (domain.ReviewSummary, error) {
	return s.reviews.ForBook(ctx, bookID)
}

// DeleteReview removes any review on behalf of the admin.
func (s *AdminService) DeleteReview(ctx context.Context, admin *domain.AuthenticatedUser, id int64) error {
	if admin == nil || !admin.IsAdmin() {
		return fmt.Errorf("delete review: %w", ErrForbidden)
	}
	return s.reviews.Delete(ctx, admin, id)
}
