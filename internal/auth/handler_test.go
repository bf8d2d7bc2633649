package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/research-assistant/backend/internal/models"
)

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: map[string]*models.User{}}
}

func (m *memUsers) CreateUser(_ context.Context, name, email, hashedPw string, credits int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.NewString(), Name: name, Email: email, Password: hashedPw, Credits: credits}
	m.byEmail[email] = u
	cp := *u
	cp.Password = ""
	return &cp, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			cp := *u
			cp.Password = ""
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func newAuthRouter(t *testing.T) (http.Handler, *memUsers) {
	t.Helper()
	_, sessions := setupSessions(t)
	users := newMemUsers()
	h := NewHandler(users, sessions, 100, nil)

	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/users/{userID}", h.User)
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookie); err == nil {
				if id, _ := sessions.Get(r.Context(), c.Value); id != "" {
					r = r.WithContext(WithUserID(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}).Get("/me", h.Me)
	return r, users
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestSignupLoginMe(t *testing.T) {
	h, _ := newAuthRouter(t)

	rec := post(h, "/signup", `{"name":"Ada","email":"Ada@Example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var signup models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signup))
	assert.Equal(t, "ada@example.com", signup.User.Email)
	assert.Equal(t, 100, signup.User.Credits)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = post(h, "/signup", `{"name":"Ada","email":"ada@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Email already registered"}`, rec.Body.String())

	rec = post(h, "/login", `{"email":"ada@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())

	rec = post(h, "/login", `{"email":"ada@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	h.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	var user models.User
	require.NoError(t, json.NewDecoder(me.Body).Decode(&user))
	assert.Equal(t, signup.User.ID, user.ID)

	byID := httptest.NewRecorder()
	h.ServeHTTP(byID, httptest.NewRequest(http.MethodGet, "/users/"+user.ID, nil))
	assert.Equal(t, http.StatusOK, byID.Code)
}

func TestMeWithoutSession(t *testing.T) {
	h, _ := newAuthRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupValidation(t *testing.T) {
	h, _ := newAuthRouter(t)
	assert.Equal(t, http.StatusBadRequest, post(h, "/signup", `{"email":"a@b.c"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "/signup", `not json`).Code)
}

func TestUserNotFound(t *testing.T) {
	h, _ := newAuthRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
}
