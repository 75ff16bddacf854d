package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	adapthttp "bookstore/internal/adapter/http"
	"bookstore/internal/adapter/memory"
	"bookstore/internal/adapter/redisstore"
	"bookstore/internal/app"
	"bookstore/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ---------------------------------------------------------------------------
// Mock mailer (function-fields pattern)
// ---------------------------------------------------------------------------

type mockMailer struct {
	mu     sync.Mutex
	sent   []domain.Message
	sendFn func(ctx context.Context, m domain.Message) error
}

func (m *mockMailer) Send(ctx context.Context, msg domain.Message) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) last() domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return domain.Message{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ---------------------------------------------------------------------------
// Test-server helper
// ---------------------------------------------------------------------------

const testCode = "123-456"

var (
	testHashKey  = []byte("0123456789abcdef0123456789abcdef")
	testBlockKey = []byte("fedcba9876543210fedcba9876543210")
)

type testEnv struct {
	ts     *httptest.Server
	db     *memory.DB
	mailer *mockMailer
}

func testCookieStore() *sessions.CookieStore {
	store := sessions.NewCookieStore(testHashKey, testBlockKey)
	store.Options = &sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
	return store
}

// newTestServer starts a server on the in-memory repository. mods adjust the
// adapter config before the server is built.
func newTestServer(t *testing.T, mods ...func(*adapthttp.Config)) *testEnv {
	t.Helper()

	db := memory.New()
	mailer := &mockMailer{}
	opts := []app.Option{
		app.WithCodeGenerator(func() (string, error) { return testCode, nil }),
		app.WithBcryptCost(bcrypt.MinCost),
	}
	reviews := app.NewReviewService(db, db, opts...)
	svc := adapthttp.Services{
		Auth:    app.NewAuthService(db, db, mailer, opts...),
		Profile: app.NewProfileService(db, db, mailer, opts...),
		Cart:    app.NewCartService(db, opts...),
		Catalog: app.NewCatalogService(db),
		Reviews: reviews,
		Admin:   app.NewAdminService(db, db, reviews, opts...),
		Contact: app.NewContactService(mailer, "shop@example.com", opts...),
	}

	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := adapthttp.Config{
		WebDir:             webDir,
		Sessions:           testCookieStore(),
		LoginRatePerMinute: 1000,
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	srv := adapthttp.New(svc, cfg, zap.NewNop()).WithoutCSRF()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, mailer: mailer}
}

func (e *testEnv) user(t *testing.T, email, password string, role domain.Role, twoFA bool) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u, err := e.db.Create(context.Background(), &domain.User{
		FirstName: "Test", LastName: "User", Email: email,
		PasswordHash: string(hash), Role: role, TwoFactorEnabled: twoFA,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) book(t *testing.T, stock int) *domain.Book {
	t.Helper()
	ctx := context.Background()
	g, err := e.db.CreateGenre(ctx, &domain.Genre{Name: fmt.Sprintf("Genre %d", stock), Spotlight: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.db.CreateBook(ctx, &domain.Book{
		Title: "Dune", Author: "Frank Herbert", GenreID: g.ID, ISBN: fmt.Sprintf("978044117%04d", stock),
		Price: 9.99, StockQuantity: stock,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// client returns an HTTP client with its own cookie jar, i.e. its own browser session.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func (e *testEnv) login(t *testing.T, c *http.Client, email, password string) {
	t.Helper()
	resp := do(t, c, http.MethodPost, e.ts.URL+"/api/login", map[string]any{"email": email, "password": password})
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
}

func do(t *testing.T, c *http.Client, method, url string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

// expect asserts the status and returns the decoded body.
func expect(t *testing.T, resp *http.Response, status int) map[string]any {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	body := decodeBody(t, resp)
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d; body: %v", status, resp.StatusCode, body)
	}
	return body
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := expect(t, resp, http.StatusOK)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestHealthEndpoint_StorageDown(t *testing.T) {
	env := newTestServer(t, func(cfg *adapthttp.Config) {
		cfg.Ping = func(context.Context) error { return errors.New("dial tcp: connection refused") }
	})

	resp, err := http.Get(env.ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := expect(t, resp, http.StatusServiceUnavailable)
	if body["ok"] != false || len(body) != 1 {
		t.Fatalf("expected only ok=false, got %v", body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)

	tests := []struct {
		name       string
		payload    map[string]any
		wantStatus int
	}{
		{"valid", map[string]any{"email": "  ADA@example.com ", "password": "correct-horse"}, http.StatusOK},
		{"wrong password", map[string]any{"email": "ada@example.com", "password": "nope-nope"}, http.StatusUnauthorized},
		{"unknown email", map[string]any{"email": "bob@example.com", "password": "correct-horse"}, http.StatusUnauthorized},
		{"unknown field", map[string]any{"email": "ada@example.com", "password": "x", "extra": 1}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := env.client(t)
			body := expect(t, do(t, c, http.MethodPost, env.ts.URL+"/api/login", tc.payload), tc.wantStatus)
			if tc.wantStatus == http.StatusOK && body["success"] != true {
				t.Errorf("expected success, got %v", body)
			}
			if tc.wantStatus != http.StatusOK && body["error"] == nil {
				t.Errorf("expected error field, got %v", body)
			}
		})
	}
}

func TestTwoFactorFlow(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	c := env.client(t)
	url := env.ts.URL

	body := expect(t, do(t, c, http.MethodPost, url+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusOK)
	if body["twoFA"] != true {
		t.Fatalf("expected twoFA pending, got %v", body)
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected code mailed, got %d messages", env.mailer.count())
	}

	status := expect(t, do(t, c, http.MethodGet, url+"/api/user/status", nil), http.StatusOK)
	if status["loggedIn"] != false || status["twoFAPending"] != true {
		t.Fatalf("session must not be authenticated before verify, got %v", status)
	}
	expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusUnauthorized)

	expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": "000-000"}), http.StatusUnauthorized)
	expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": " " + testCode + " "}), http.StatusOK)
	expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusOK)

	body = expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": testCode}), http.StatusBadRequest)
	if body["error"] != "no challenge pending" {
		t.Errorf("expected no challenge pending, got %v", body["error"])
	}
}

func sessionCookie(t *testing.T, c *http.Client, rawURL string) *http.Cookie {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == "bookstore_session" {
			return ck
		}
	}
	t.Fatal("no session cookie")
	return nil
}

// clientWith returns a client whose jar holds only ck.
func (e *testEnv) clientWith(t *testing.T, ck *http.Cookie) *http.Client {
	t.Helper()
	c := e.client(t)
	u, err := url.Parse(e.ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	c.Jar.SetCookies(u, []*http.Cookie{{Name: ck.Name, Value: ck.Value, Path: "/"}})
	return c
}

func TestTwoFactor_CodeNotInCookie(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	c := env.client(t)

	resp := do(t, c, http.MethodPost, env.ts.URL+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"})
	expect(t, resp, http.StatusOK)

	setCookie := strings.Join(resp.Header.Values("Set-Cookie"), "\n")
	if setCookie == "" {
		t.Fatal("expected a session cookie")
	}
	if strings.Contains(setCookie, testCode) {
		t.Fatal("code leaked into Set-Cookie")
	}

	ck := sessionCookie(t, c, env.ts.URL)
	var signedOnly map[any]any
	if err := securecookie.New(testHashKey, nil).Decode(ck.Name, ck.Value, &signedOnly); err == nil {
		t.Fatal("cookie must not decode without the encryption key")
	}
	var values map[any]any
	if err := securecookie.New(testHashKey, testBlockKey).Decode(ck.Name, ck.Value, &values); err != nil {
		t.Fatalf("decode with both keys: %v", err)
	}
	if dump := fmt.Sprintf("%+v", values); strings.Contains(dump, testCode) {
		t.Fatalf("session values carry the code: %s", dump)
	}
}

func TestTwoFactor_ReplayedCookieRejected(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	c := env.client(t)
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusOK)
	saved := sessionCookie(t, c, url)

	expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": testCode}), http.StatusOK)
	expect(t, do(t, c, http.MethodPost, url+"/api/logout", nil), http.StatusOK)

	replay := env.clientWith(t, saved)
	body := expect(t, do(t, replay, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": testCode}), http.StatusBadRequest)
	if body["error"] != "no challenge pending" {
		t.Errorf("expected no challenge pending, got %v", body["error"])
	}
	status := expect(t, do(t, replay, http.MethodGet, url+"/api/user/status", nil), http.StatusOK)
	if status["loggedIn"] != false {
		t.Errorf("replayed cookie must not authenticate, got %v", status)
	}
}

func TestVerify2FA_NonStringCode(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	c := env.client(t)
	url := env.ts.URL

	for _, code := range []any{123456, true, map[string]any{"x": 1}} {
		body := expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": code}), http.StatusBadRequest)
		if body["error"] != "no challenge pending" {
			t.Errorf("code %v: expected no challenge pending, got %v", code, body["error"])
		}
	}

	expect(t, do(t, c, http.MethodPost, url+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusOK)
	body := expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": nil}), http.StatusBadRequest)
	if body["error"] != "code required" {
		t.Errorf("expected code required, got %v", body["error"])
	}
	body = expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": 123456}), http.StatusUnauthorized)
	if body["error"] != "incorrect code" {
		t.Errorf("expected incorrect code, got %v", body["error"])
	}
}

func TestSessionRenewedOnLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.New(client, testHashKey, testBlockKey)
	store.Options = &sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode}

	env := newTestServer(t, func(cfg *adapthttp.Config) { cfg.Sessions = store })
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	c := env.client(t)
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusOK)
	before := sessionCookie(t, c, url)
	if keys := mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected one stored session, got %v", keys)
	}
	oldKey := mr.Keys()[0]

	expect(t, do(t, c, http.MethodPost, url+"/api/verify-2fa", map[string]any{"code": testCode}), http.StatusOK)
	after := sessionCookie(t, c, url)
	if after.Value == before.Value {
		t.Fatal("expected a new session id after authentication")
	}
	if mr.Exists(oldKey) {
		t.Error("expected the pre-authentication session deleted")
	}

	stale := env.clientWith(t, before)
	status := expect(t, do(t, stale, http.MethodGet, url+"/api/user/status", nil), http.StatusOK)
	if status["loggedIn"] != false || status["twoFAPending"] != false {
		t.Errorf("old session id must be dead, got %v", status)
	}
	status = expect(t, do(t, c, http.MethodGet, url+"/api/user/status", nil), http.StatusOK)
	if status["loggedIn"] != true {
		t.Errorf("expected renewed session authenticated, got %v", status)
	}
}

func TestLoginMailFailure(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, true)
	env.mailer.sendFn = func(context.Context, domain.Message) error { return errors.New("smtp: connection refused") }
	c := env.client(t)

	body := expect(t, do(t, c, http.MethodPost, env.ts.URL+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusInternalServerError)
	if body["error"] != "failed to send verification code" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestLogout(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)
	c := env.client(t)
	env.login(t, c, "ada@example.com", "correct-horse")

	expect(t, do(t, c, http.MethodPost, env.ts.URL+"/api/logout", nil), http.StatusOK)
	status := expect(t, do(t, c, http.MethodGet, env.ts.URL+"/api/user/status", nil), http.StatusOK)
	if status["loggedIn"] != false {
		t.Errorf("expected logged out, got %v", status)
	}
}

func TestRegister(t *testing.T) {
	env := newTestServer(t)
	c := env.client(t)
	payload := map[string]any{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "password": "analytical"}

	expect(t, do(t, c, http.MethodPost, env.ts.URL+"/api/register", payload), http.StatusCreated)
	body := expect(t, do(t, c, http.MethodPost, env.ts.URL+"/api/register", payload), http.StatusConflict)
	if body["error"] != "email already registered" {
		t.Errorf("unexpected error %v", body["error"])
	}
	env.login(t, c, "ada@example.com", "analytical")
}

func TestCartFlow(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)
	book := env.book(t, 3)
	c := env.client(t)
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": book.ID}), http.StatusUnauthorized)
	env.login(t, c, "ada@example.com", "correct-horse")

	body := expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": book.ID}), http.StatusOK)
	if body["quantity"] != float64(1) {
		t.Errorf("expected default quantity 1, got %v", body["quantity"])
	}
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": book.ID, "quantity": 3}), http.StatusConflict)
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": 999, "quantity": 1}), http.StatusNotFound)
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": "abc"}), http.StatusBadRequest)
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": 1.5}), http.StatusBadRequest)

	for i := 0; i < 2; i++ {
		expect(t, do(t, c, http.MethodPost, url+"/api/cart/update", map[string]any{"bookId": book.ID, "quantity": 2}), http.StatusOK)
	}
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/update", map[string]any{"bookId": book.ID}), http.StatusBadRequest)

	cart := expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusOK)
	items, _ := cart["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", cart)
	}
	line := items[0].(map[string]any)
	if line["quantity"] != float64(2) || line["overStock"] != false || line["maxQuantity"] != float64(3) {
		t.Errorf("unexpected line %v", line)
	}

	expect(t, do(t, c, http.MethodPost, url+"/api/cart/update", map[string]any{"bookId": book.ID, "quantity": 0}), http.StatusOK)
	for i := 0; i < 2; i++ {
		expect(t, do(t, c, http.MethodPost, url+"/api/cart/remove", map[string]any{"bookId": book.ID}), http.StatusOK)
	}
	cart = expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusOK)
	if items, _ := cart["items"].([]any); len(items) != 0 {
		t.Errorf("expected empty cart, got %v", cart)
	}
}

func TestCart_StringBookID(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)
	book := env.book(t, 5)
	c := env.client(t)
	url := env.ts.URL
	env.login(t, c, "ada@example.com", "correct-horse")
	id := strconv.FormatInt(book.ID, 10)

	body := expect(t, do(t, c, http.MethodPost, url+"/api/cart/add", map[string]any{"bookId": id, "quantity": 2}), http.StatusOK)
	if body["quantity"] != float64(2) {
		t.Errorf("expected quantity 2, got %v", body["quantity"])
	}
	expect(t, do(t, c, http.MethodPost, url+"/api/cart/update", map[string]any{"bookId": id, "quantity": 4}), http.StatusOK)

	cart := expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusOK)
	items, _ := cart["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["quantity"] != float64(4) {
		t.Fatalf("expected one line of 4, got %v", cart)
	}

	expect(t, do(t, c, http.MethodPost, url+"/api/cart/remove", map[string]any{"bookId": id}), http.StatusOK)
	cart = expect(t, do(t, c, http.MethodGet, url+"/api/cart", nil), http.StatusOK)
	if items, _ := cart["items"].([]any); len(items) != 0 {
		t.Errorf("expected empty cart, got %v", cart)
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "user@example.com", "user-password", domain.RoleUser, false)
	env.user(t, "admin@example.com", "admin-password", domain.RoleAdmin, false)

	anon := env.client(t)
	user := env.client(t)
	admin := env.client(t)
	env.login(t, user, "user@example.com", "user-password")
	env.login(t, admin, "admin@example.com", "admin-password")

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/users"},
		{http.MethodGet, "/api/genres"},
		{http.MethodGet, "/api/books"},
		{http.MethodDelete, "/api/books/1"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			body := expect(t, do(t, anon, rt.method, env.ts.URL+rt.path, nil), http.StatusUnauthorized)
			if body["error"] != "not authenticated" {
				t.Errorf("unexpected error %v", body["error"])
			}
			body = expect(t, do(t, user, rt.method, env.ts.URL+rt.path, nil), http.StatusForbidden)
			if len(body) != 1 {
				t.Errorf("rejection must not leak data, got %v", body)
			}
		})
	}

	page := expect(t, do(t, admin, http.MethodGet, env.ts.URL+"/api/admin/users?page=1&pageSize=1", nil), http.StatusOK)
	if page["total"] != float64(2) || page["totalPages"] != float64(2) {
		t.Errorf("unexpected page %v", page)
	}
}

func TestAdminCatalog(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "admin@example.com", "admin-password", domain.RoleAdmin, false)
	c := env.client(t)
	env.login(t, c, "admin@example.com", "admin-password")
	url := env.ts.URL

	genre := expect(t, do(t, c, http.MethodPost, url+"/api/genres/add", map[string]any{"genre": "Sci-Fi", "spotlight": true}), http.StatusCreated)
	genreID := genre["id"].(float64)

	bookPayload := map[string]any{
		"title": "Dune", "author": "Frank Herbert", "genreId": genreID, "isbn": "978-0441172719",
		"publisher": "Ace", "price": 9.99, "stockQuantity": 4,
	}
	book := expect(t, do(t, c, http.MethodPost, url+"/api/books/add", bookPayload), http.StatusCreated)
	expect(t, do(t, c, http.MethodPost, url+"/api/books/add", bookPayload), http.StatusConflict)

	bookPayload["isbn"] = "123"
	expect(t, do(t, c, http.MethodPost, url+"/api/books/add", bookPayload), http.StatusBadRequest)

	expect(t, do(t, c, http.MethodDelete, fmt.Sprintf("%s/api/genres/%d", url, int64(genreID)), nil), http.StatusConflict)

	spotlight := expect(t, do(t, c, http.MethodGet, url+"/api/public/spotlight-books", nil), http.StatusOK)
	if items, _ := spotlight["items"].([]any); len(items) != 1 {
		t.Errorf("expected the new book in spotlight, got %v", spotlight)
	}

	browse := expect(t, do(t, c, http.MethodGet, url+"/api/public/browse?search=herb", nil), http.StatusOK)
	if browse["total"] != float64(1) {
		t.Errorf("expected search hit, got %v", browse)
	}

	expect(t, do(t, c, http.MethodDelete, fmt.Sprintf("%s/api/books/%d", url, int64(book["id"].(float64))), nil), http.StatusOK)
	expect(t, do(t, c, http.MethodGet, fmt.Sprintf("%s/api/public/books/%d", url, int64(book["id"].(float64))), nil), http.StatusNotFound)
}

func TestAdminBookImage_RejectsNonImage(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "admin@example.com", "admin-password", domain.RoleAdmin, false)
	book := env.book(t, 1)
	c := env.client(t)
	env.login(t, c, "admin@example.com", "admin-password")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "cover.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("definitely not an image"))
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/books/%d/image", env.ts.URL, book.ID), &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	expect(t, resp, http.StatusBadRequest)
}

func TestReviewOwnership(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "author@example.com", "author-password", domain.RoleUser, false)
	env.user(t, "other@example.com", "other-password", domain.RoleUser, false)
	book := env.book(t, 1)
	author := env.client(t)
	other := env.client(t)
	env.login(t, author, "author@example.com", "author-password")
	env.login(t, other, "other@example.com", "other-password")
	url := env.ts.URL

	expect(t, do(t, author, http.MethodPost, fmt.Sprintf("%s/api/user/books/%d/reviews", url, book.ID),
		map[string]any{"rating": 6, "comment": "too good"}), http.StatusBadRequest)
	review := expect(t, do(t, author, http.MethodPost, fmt.Sprintf("%s/api/user/books/%d/reviews", url, book.ID),
		map[string]any{"rating": 5, "comment": "Spice!"}), http.StatusCreated)
	reviewURL := fmt.Sprintf("%s/api/user/reviews/%d", url, int64(review["id"].(float64)))

	expect(t, do(t, other, http.MethodDelete, reviewURL, nil), http.StatusForbidden)

	summary := expect(t, do(t, other, http.MethodGet, fmt.Sprintf("%s/api/public/books/%d/reviews", url, book.ID), nil), http.StatusOK)
	if summary["count"] != float64(1) || summary["avgRating"] != float64(5) {
		t.Errorf("unexpected summary %v", summary)
	}

	expect(t, do(t, author, http.MethodDelete, reviewURL, nil), http.StatusOK)
	expect(t, do(t, author, http.MethodDelete, reviewURL, nil), http.StatusNotFound)
}

func TestPasswordChangeFlow(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)
	c := env.client(t)
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/profile/password/request", nil), http.StatusUnauthorized)
	env.login(t, c, "ada@example.com", "correct-horse")

	expect(t, do(t, c, http.MethodPost, url+"/api/profile/password/request", nil), http.StatusOK)
	expect(t, do(t, c, http.MethodPut, url+"/api/profile/password",
		map[string]any{"code": "999-999", "newPassword": "battery-staple"}), http.StatusUnauthorized)
	expect(t, do(t, c, http.MethodPut, url+"/api/profile/password",
		map[string]any{"code": testCode, "newPassword": "battery-staple"}), http.StatusOK)

	fresh := env.client(t)
	expect(t, do(t, fresh, http.MethodPost, url+"/api/login",
		map[string]any{"email": "ada@example.com", "password": "correct-horse"}), http.StatusUnauthorized)
	env.login(t, fresh, "ada@example.com", "battery-staple")
}

func TestProfile(t *testing.T) {
	env := newTestServer(t)
	env.user(t, "ada@example.com", "correct-horse", domain.RoleUser, false)
	c := env.client(t)
	env.login(t, c, "ada@example.com", "correct-horse")
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/profile/2fa", nil), http.StatusOK)
	profile := expect(t, do(t, c, http.MethodGet, url+"/api/profile", nil), http.StatusOK)
	if profile["twoFAEnabled"] != true || profile["email"] != "ada@example.com" {
		t.Errorf("unexpected profile %v", profile)
	}

	expect(t, do(t, c, http.MethodPut, url+"/api/profile", map[string]any{"firstName": "Augusta", "lastName": "King"}), http.StatusOK)
	status := expect(t, do(t, c, http.MethodGet, url+"/api/user/status", nil), http.StatusOK)
	user, _ := status["user"].(map[string]any)
	if user["firstName"] != "Augusta" {
		t.Errorf("expected session snapshot refreshed, got %v", status)
	}
}

func TestContact(t *testing.T) {
	env := newTestServer(t)
	c := env.client(t)
	url := env.ts.URL

	expect(t, do(t, c, http.MethodPost, url+"/api/email/send-contact", map[string]any{"subject": "Hi"}), http.StatusBadRequest)
	expect(t, do(t, c, http.MethodPost, url+"/api/email/send-contact",
		map[string]any{"subject": "Hi", "text": "Do you stock Dune?", "replyTo": "reader@example.com"}), http.StatusOK)

	expect(t, do(t, c, http.MethodPost, url+"/api/email/send-contact",
		map[string]any{"subject": "Hi", "html": "<p>Do you stock <b>Dune</b>?</p>"}), http.StatusOK)
	if msg := env.mailer.last(); msg.Text != "Do you stock Dune?" || msg.HTML == "" {
		t.Errorf("expected generated text part, got %+v", msg)
	}

	env.mailer.sendFn = func(context.Context, domain.Message) error { return errors.New("smtp down") }
	body := expect(t, do(t, c, http.MethodPost, url+"/api/email/send-contact",
		map[string]any{"subject": "Hi", "text": "again"}), http.StatusInternalServerError)
	if body["error"] != "failed to send email" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t)
	resp, err := http.Get(env.ts.URL + "/api/login")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestSSODisabled(t *testing.T) {
	env := newTestServer(t)
	cfg := expect(t, do(t, env.client(t), http.MethodGet, env.ts.URL+"/api/config", nil), http.StatusOK)
	if cfg["sso_enabled"] != false {
		t.Errorf("expected sso disabled, got %v", cfg)
	}
	expect(t, do(t, env.client(t), http.MethodGet, env.ts.URL+"/api/auth/sso/login", nil), http.StatusNotFound)
}
