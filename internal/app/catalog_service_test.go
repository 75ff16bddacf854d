package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"bookstore/internal/adapter/memory"
	"bookstore/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

type catalogFixture struct {
	db      *memory.DB
	catalog *CatalogService
	reviews *ReviewService
	admin   *AdminService
	genre   *domain.Genre
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	db := memory.New()
	reviews := NewReviewService(db, db)
	f := &catalogFixture{
		db:      db,
		catalog: NewCatalogService(db),
		reviews: reviews,
		admin:   NewAdminService(db, db, reviews, WithBcryptCost(bcrypt.MinCost)),
	}
	g, err := f.admin.CreateGenre(context.Background(), GenreInput{Name: "Science Fiction", Spotlight: true})
	if err != nil {
		t.Fatalf("CreateGenre: %v", err)
	}
	f.genre = g
	return f
}

func (f *catalogFixture) book(t *testing.T, title, isbn string) *domain.Book {
	t.Helper()
	b, err := f.admin.CreateBook(context.Background(), BookInput{
		Title: title, Author: "Someone", GenreID: f.genre.ID, ISBN: isbn, Price: 12.5, StockQuantity: 3,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	return b
}

func TestCatalogService_Browse(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	for i, title := range []string{"Alpha", "Beta", "Gamma"} {
		f.book(t, title, "978000000000"+string(rune('0'+i)))
	}

	page, err := f.catalog.Browse(ctx, "", 0, domain.PageRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 1 || page.Items[0].Title != "Gamma" {
		t.Errorf("unexpected page %+v", page)
	}

	page, _ = f.catalog.Browse(ctx, "  bet ", f.genre.ID, domain.PageRequest{})
	if len(page.Items) != 1 || page.Items[0].Title != "Beta" || page.PageSize != domain.DefaultPageSize {
		t.Errorf("unexpected filtered page %+v", page)
	}
}

func TestCatalogService_BookAndSpotlight(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	b := f.book(t, "Dune", "9780441172719")

	got, err := f.catalog.Book(ctx, b.ID)
	if err != nil || got.Genre != "Science Fiction" {
		t.Fatalf("Book: %+v %v", got, err)
	}
	if _, err := f.catalog.Book(ctx, 999); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}

	spot, err := f.catalog.Spotlight(ctx)
	if err != nil || len(spot) != 1 {
		t.Errorf("expected 1 spotlight book, got %v %v", spot, err)
	}
	genres, _ := f.catalog.Genres(ctx)
	if len(genres) != 1 {
		t.Errorf("expected 1 genre, got %d", len(genres))
	}
}

func TestReviewService_SummaryAndOwnership(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	b := f.book(t, "Dune", "9780441172719")
	author, _ := f.db.Create(ctx, &domain.User{FirstName: "A", LastName: "B", Email: "a@example.com", Role: domain.RoleUser})
	other, _ := f.db.Create(ctx, &domain.User{FirstName: "C", LastName: "D", Email: "c@example.com", Role: domain.RoleUser})
	admin := &domain.AuthenticatedUser{ID: 99, Role: domain.RoleAdmin}

	r1, err := f.reviews.Post(ctx, author.Snapshot(), b.ID, 5, "  great ")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if r1.Comment != "great" {
		t.Errorf("expected trimmed comment, got %q", r1.Comment)
	}
	if _, err := f.reviews.Post(ctx, other.Snapshot(), b.ID, 4, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reviews.Post(ctx, other.Snapshot(), b.ID, 4, ""); err != nil {
		t.Fatal(err)
	}

	sum, err := f.reviews.ForBook(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 3 || sum.AvgRating != 4.3 {
		t.Errorf("expected 3 reviews averaging 4.3, got %d / %v", sum.Count, sum.AvgRating)
	}

	if err := f.reviews.Delete(ctx, other.Snapshot(), r1.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if err := f.reviews.Delete(ctx, author.Snapshot(), r1.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	var otherReviewID int64
	for _, r := range sum.Reviews {
		if r.ID != r1.ID {
			otherReviewID = r.ID
			break
		}
	}
	if err := f.admin.DeleteReview(ctx, admin, otherReviewID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := f.reviews.Delete(ctx, author.Snapshot(), r1.ID); !errors.Is(err, ErrReviewNotFound) {
		t.Errorf("expected ErrReviewNotFound, got %v", err)
	}

	tests := []struct {
		name    string
		rating  int
		comment string
		bookID  int64
		want    domain.Kind
	}{
		{"rating too low", 0, "", b.ID, domain.KindValidation},
		{"rating too high", 6, "", b.ID, domain.KindValidation},
		{"comment too long", 3, strings.Repeat("x", maxCommentLength+1), b.ID, domain.KindValidation},
		{"missing book", 3, "", 999, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reviews.Post(ctx, author.Snapshot(), tt.bookID, tt.rating, tt.comment)
			if domain.KindOf(err) != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAdminService_BookValidation(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.book(t, "Dune", "978-0441172719")

	tests := []struct {
		name string
		in   BookInput
		want error
	}{
		{"duplicate isbn", BookInput{Title: "X", Author: "Y", GenreID: f.genre.ID, ISBN: "9780441172719"}, ErrDuplicateISBN},
		{"unknown genre", BookInput{Title: "X", Author: "Y", GenreID: 42, ISBN: "9780000000001"}, ErrGenreNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.admin.CreateBook(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	invalid := []BookInput{
		{Author: "Y", GenreID: f.genre.ID, ISBN: "9780000000001"},
		{Title: "X", Author: "Y", GenreID: f.genre.ID, ISBN: "12345"},
		{Title: "X", Author: "Y", GenreID: f.genre.ID, ISBN: "9780000000001", Price: -1},
		{Title: "X", Author: "Y", GenreID: f.genre.ID, ISBN: "9780000000001", StockQuantity: -2},
		{Title: "X", Author: "Y", ISBN: "9780000000001"},
	}
	for i, in := range invalid {
		if _, err := f.admin.CreateBook(ctx, in); domain.KindOf(err) != domain.KindValidation {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestAdminService_GenreLifecycle(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	b := f.book(t, "Dune", "9780441172719")

	if _, err := f.admin.CreateGenre(ctx, GenreInput{Name: "science fiction"}); !errors.Is(err, ErrDuplicateGenre) {
		t.Errorf("expected ErrDuplicateGenre, got %v", err)
	}
	if err := f.admin.DeleteGenre(ctx, f.genre.ID); !errors.Is(err, ErrGenreInUse) {
		t.Fatalf("expected ErrGenreInUse, got %v", err)
	}
	if err := f.admin.DeleteBook(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.admin.DeleteGenre(ctx, f.genre.ID); err != nil {
		t.Fatalf("DeleteGenre: %v", err)
	}
	if _, err := f.admin.UpdateGenre(ctx, f.genre.ID, GenreInput{Name: "Gone"}); !errors.Is(err, ErrGenreNotFound) {
		t.Errorf("expected ErrGenreNotFound, got %v", err)
	}
}

func TestAdminService_Users(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	u, err := f.admin.CreateUser(ctx, UserInput{FirstName: "Ad", LastName: "Min", Email: "admin@example.com", Password: "longenough", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := f.admin.CreateUser(ctx, UserInput{FirstName: "X", LastName: "Y", Email: "x@example.com", Password: "longenough"}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("expected validation error for missing role, got %v", err)
	}

	updated, err := f.admin.UpdateUser(ctx, u.ID, UserInput{FirstName: "New", LastName: "Name", Email: "admin@example.com", Role: domain.RoleUser, TwoFactorEnabled: true})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	stored, _ := f.db.GetByID(ctx, u.ID)
	if stored.Role != domain.RoleUser || !stored.TwoFactorEnabled || stored.PasswordHash == "" || updated.FirstName != "New" {
		t.Errorf("unexpected stored user %+v", stored)
	}

	page, err := f.admin.Users(ctx, domain.PageRequest{Page: 1, PageSize: 10})
	if err != nil || page.Total != 1 {
		t.Errorf("unexpected users page %+v %v", page, err)
	}
	if _, err := f.admin.UpdateUser(ctx, 999, UserInput{FirstName: "A", LastName: "B", Email: "b@example.com", Role: domain.RoleUser}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminService_SetBookImage(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	b := f.book(t, "Dune", "9780441172719")

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatal(err)
	}
	if err := f.admin.SetBookImage(ctx, b.ID, &buf); err != nil {
		t.Fatalf("SetBookImage: %v", err)
	}
	got, _ := f.db.GetBook(ctx, b.ID)
	if got.ImageBase64 == "" {
		t.Error("expected stored image")
	}

	if err := f.admin.SetBookImage(ctx, b.ID, strings.NewReader("text")); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestContactService_Send(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewContactService(mailer, "shop@example.com", WithClock(time.Now))
	ctx := context.Background()

	if err := svc.Send(ctx, "", "body", "", ""); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.Send(ctx, "Hello", "", "<p>hi</p>", "Reader@Example.com"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg := mailer.last()
	if msg.To != "shop@example.com" || msg.ReplyTo != "reader@example.com" || msg.HTML == "" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Text != "hi" {
		t.Errorf("expected generated text part, got %q", msg.Text)
	}

	mailer.err = errors.New("smtp down")
	err := svc.Send(ctx, "Hello", "body", "", "")
	if domain.PublicMessage(err) != "failed to send email" {
		t.Errorf("unexpected public message %q", domain.PublicMessage(err))
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>Hello <b>there</b></p><p>Second   line</p>", "Hello there\nSecond line"},
		{"line breaks", "one<br>two<br/>three", "one\ntwo\nthree"},
		{"entities", "<p>Fish &amp; Chips</p>", "Fish & Chips"},
		{"script dropped", "<style>p{color:red}</style><p>Visible</p><script>alert(1)</script>", "Visible"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlToText(tt.in); got != tt.want {
				t.Errorf("htmlToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
