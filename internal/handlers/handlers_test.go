package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"libraryhub/internal/auth"
	"libraryhub/internal/database"
	"libraryhub/internal/models"
	"libraryhub/internal/ratelimit"
	"libraryhub/internal/repositories"
	"libraryhub/internal/services"
)

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	accounts services.AccountService
	users    repositories.UserRepository
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	users := repositories.NewUserRepository(db)
	books := repositories.NewBookRepository(db)
	ebooks := repositories.NewEbookRepository(db)
	borrows := repositories.NewBorrowRequestRepository(db)

	accounts := services.NewAccountService(db, users, auth.NewTokenIssuer("handler-secret", time.Hour), 4, 0)
	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Borrow:   services.NewBorrowService(db, users, books, borrows, services.BorrowOptions{}),
		Catalog:  services.NewCatalogService(db, books, ebooks, borrows, 0),
		Accounts: accounts,
		Limiter:  limiter,
	})
	return &testServer{t: t, db: db, router: r, accounts: accounts, users: users}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// register creates an account and returns its token and id; non-user roles
// are assigned directly in the store.
func (s *testServer) register(name string, role models.UserRole) (string, uuid.UUID) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     name,
		"email":    fmt.Sprintf("%s@example.com", name),
		"password": "password123",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	if role != models.UserRoleUser {
		_, err := s.users.UpdateRole(nil, res.User.ID, role)
		require.NoError(s.t, err)
	}
	return res.Token, res.User.ID
}

func (s *testServer) createBook(token string, copies int) models.PhysicalBook {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/physical-books", token, gin.H{
		"title":  "Snow Crash",
		"author": "Neal Stephenson",
		"isbn":   uuid.NewString()[:13],
		"copies": copies,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Book models.PhysicalBook `json:"book"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Book
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestBorrowFlow(t *testing.T) {
	s := newTestServer(t, nil)
	librarian, _ := s.register("libby", models.UserRoleLibrarian)
	alice, _ := s.register("alice", models.UserRoleUser)
	bob, _ := s.register("bob", models.UserRoleUser)
	book := s.createBook(librarian, 1)

	w := s.do(http.MethodPost, "/api/borrow/request", alice, gin.H{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Message string               `json:"message"`
		Request models.BorrowRequest `json:"request"`
	}](t, w)
	assert.Equal(t, models.BorrowStatusPending, created.Request.Status)

	w = s.do(http.MethodPost, "/api/borrow/request", alice, gin.H{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/borrow/requests?status=pending", librarian, nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]services.RequestView](t, w)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Book)
	assert.Equal(t, "Snow Crash", views[0].Book.Title)
	require.NotNil(t, views[0].User)
	assert.Equal(t, "alice@example.com", views[0].User.Email)

	statusURL := fmt.Sprintf("/api/borrow/requests/%s/status", created.Request.ID)
	w = s.do(http.MethodPatch, statusURL, librarian, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/borrow/request", bob, gin.H{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, w.Code, "out of stock")

	w = s.do(http.MethodPatch, statusURL, librarian, gin.H{"status": "rejected"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "invalid_transition", body["code"])
	assert.Equal(t, "accepted", body["from"])
	assert.Equal(t, "rejected", body["to"])

	w = s.do(http.MethodPatch, statusURL, librarian, gin.H{"status": "returned"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/borrow/history", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]services.RequestView](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, models.BorrowStatusReturned, history[0].Status)
	assert.Zero(t, history[0].Fine)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/physical-books/%s", book.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.PhysicalBook](t, w).Available)

	w = s.do(http.MethodGet, "/api/borrow/stats", librarian, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[services.OverdueSummary](t, w)
	assert.Zero(t, stats.ActiveLoans)
}

func TestBorrowRoutes_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	admin, _ := s.register("root", models.UserRoleAdmin)
	member, _ := s.register("member", models.UserRoleUser)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "missing token", method: http.MethodPost, path: "/api/borrow/request", body: gin.H{"book_id": uuid.New()}, want: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/api/borrow/history", token: "nope", want: http.StatusUnauthorized},
		{name: "missing book_id", method: http.MethodPost, path: "/api/borrow/request", token: member, body: gin.H{}, want: http.StatusBadRequest},
		{name: "bookId alias", method: http.MethodPost, path: "/api/borrow/request", token: member, body: gin.H{"bookId": uuid.New()}, want: http.StatusNotFound},
		{name: "malformed bookId", method: http.MethodPost, path: "/api/borrow/request", token: member, body: gin.H{"bookId": "42"}, want: http.StatusBadRequest},
		{name: "malformed book_id", method: http.MethodPost, path: "/api/borrow/request", token: member, body: gin.H{"book_id": "42"}, want: http.StatusBadRequest},
		{name: "unknown book", method: http.MethodPost, path: "/api/borrow/request", token: member, body: gin.H{"book_id": uuid.New()}, want: http.StatusNotFound},
		{name: "member cannot list", method: http.MethodGet, path: "/api/borrow/requests", token: member, want: http.StatusForbidden},
		{name: "member cannot update", method: http.MethodPatch, path: "/api/borrow/requests/" + uuid.NewString() + "/status", token: member, body: gin.H{"status": "accepted"}, want: http.StatusForbidden},
		{name: "unknown status value", method: http.MethodPatch, path: "/api/borrow/requests/" + uuid.NewString() + "/status", token: admin, body: gin.H{"status": "lost"}, want: http.StatusBadRequest},
		{name: "unknown request", method: http.MethodPatch, path: "/api/borrow/requests/" + uuid.NewString() + "/status", token: admin, body: gin.H{"status": "accepted"}, want: http.StatusNotFound},
		{name: "bad request id", method: http.MethodPatch, path: "/api/borrow/requests/abc/status", token: admin, body: gin.H{"status": "accepted"}, want: http.StatusBadRequest},
		{name: "bad filter", method: http.MethodGet, path: "/api/borrow/requests?status=lost", token: admin, want: http.StatusBadRequest},
		{name: "bad user filter", method: http.MethodGet, path: "/api/borrow/requests?user_id=7", token: admin, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAccountRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	admin, _ := s.register("root", models.UserRoleAdmin)
	librarian, _ := s.register("libby", models.UserRoleLibrarian)
	member, memberID := s.register("member", models.UserRoleUser)

	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "dup", "email": "member@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "member@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "member@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = s.do(http.MethodPut, "/api/account/profile", member, gin.H{"address": "221B Baker Street", "phone_number": "555-0100"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/account/profile", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[models.User](t, w)
	assert.Equal(t, "221B Baker Street", profile.Address)
	assert.Equal(t, "member", profile.Name)

	rolePath := fmt.Sprintf("/api/users/%s/role", memberID)
	w = s.do(http.MethodPatch, rolePath, librarian, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code, "only admins change roles")

	w = s.do(http.MethodPatch, rolePath, admin, gin.H{"role": "wizard"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, rolePath, admin, gin.H{"role": "librarian"})
	require.Equal(t, http.StatusOK, w.Code)

	// the same token now carries staff rights because the stored role wins
	w = s.do(http.MethodGet, "/api/borrow/requests", member, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	librarian, _ := s.register("libby", models.UserRoleLibrarian)
	member, _ := s.register("member", models.UserRoleUser)

	w := s.do(http.MethodPost, "/api/physical-books", member, gin.H{"title": "x", "author": "y", "isbn": "1", "copies": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	book := s.createBook(librarian, 2)

	w = s.do(http.MethodPost, "/api/physical-books", librarian, gin.H{"title": "x", "author": "y", "isbn": book.ISBN, "copies": 1})
	assert.Equal(t, http.StatusConflict, w.Code, "duplicate isbn")

	for _, body := range []gin.H{
		{"title": "x", "author": "y", "isbn": "no-copies"},
		{"title": "x", "author": "y", "isbn": "zero-copies", "copies": 0},
	} {
		w = s.do(http.MethodPost, "/api/physical-books", librarian, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w = s.do(http.MethodPost, fmt.Sprintf("/api/physical-books/%s/copies", book.ID), librarian, gin.H{"count": 3})
	require.Equal(t, http.StatusOK, w.Code)
	grown := decode[models.PhysicalBook](t, w)
	assert.Equal(t, 5, grown.Copies)
	assert.Equal(t, 5, grown.Available)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/physical-books/%s/copies", book.ID), librarian, gin.H{"count": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/physical-books", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.PhysicalBook](t, w), 1)

	w = s.do(http.MethodPost, "/api/borrow/request", member, gin.H{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodDelete, "/api/physical-books/"+book.ISBN, librarian, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "active request blocks deletion")

	w = s.do(http.MethodPost, "/api/ebooks", librarian, gin.H{"title": "SICP", "author": "Abelson", "isbn": "9780262510875"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "pdf required")
	w = s.do(http.MethodPost, "/api/ebooks", librarian, gin.H{"title": "SICP", "author": "Abelson", "isbn": "9780262510875", "pdf": "https://cdn.example.com/sicp.pdf"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/api/ebooks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Ebook](t, w), 1)

	w = s.do(http.MethodDelete, "/api/ebooks/9780262510875", librarian, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, "/api/ebooks/9780262510875", librarian, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndNoRoute(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	w = s.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBorrowRequest_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, ratelimit.New(rdb, 1, time.Minute))
	member, _ := s.register("member", models.UserRoleUser)

	w := s.do(http.MethodPost, "/api/borrow/request", member, gin.H{"book_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/borrow/request", member, gin.H{"book_id": uuid.New()})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRespondError_MapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		want int
		code string
	}{
		{err: services.ErrBookNotFound, want: http.StatusNotFound, code: "not_found"},
		{err: services.ErrOutOfStock, want: http.StatusConflict, code: "conflict"},
		{err: &services.InvalidTransitionError{From: models.BorrowStatusRejected, To: models.BorrowStatusAccepted}, want: http.StatusBadRequest, code: "invalid_transition"},
		{err: services.ValidationError("bad"), want: http.StatusBadRequest, code: "validation"},
		{err: services.ErrInvalidCredentials, want: http.StatusUnauthorized, code: "unauthorized"},
		{err: fmt.Errorf("list: %w", services.ErrUpstreamUnavailable), want: http.StatusServiceUnavailable, code: "upstream_unavailable"},
		{err: fmt.Errorf("boom"), want: http.StatusInternalServerError, code: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.want, w.Code)
			body := decode[map[string]string](t, w)
			assert.Equal(t, tt.code, body["code"])
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, body["error"], "boom")
			}
		})
	}
}
