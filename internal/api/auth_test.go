package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

func TestTokenRoundTrip(t *testing.T) {
	s := newTestApp(t, &directory.MockDirectory{})

	token, err := s.createToken(42)
	require.NoError(t, err)

	userId, err := s.extractUserIdFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userId)
}

func TestExtractUserIdFromToken_Invalid(t *testing.T) {
	s := newTestApp(t, &directory.MockDirectory{})

	_, err := s.extractUserIdFromToken("not-a-token")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		s := newTestApp(t, &directory.MockDirectory{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)

		s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be called without a token")
		})(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid cookie passes user id to handler", func(t *testing.T) {
		s := newTestApp(t, &directory.MockDirectory{})

		token, err := s.createToken(7)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})

		called := false
		s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			called = true
			userId, ok := UserId(r.Context())
			assert.True(t, ok)
			assert.Equal(t, 7, userId)
		})(rr, req)

		assert.True(t, called)
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials set session cookie", func(t *testing.T) {
		dir := &directory.MockDirectory{}
		defer dir.AssertExpectations(t)
		dir.On("VerifyCredentials", mock.Anything, "jose@example.com", "secret").
			Return(types.User{Id: 1, Username: "jose", EmailAddress: "jose@example.com"}, nil)

		s := newTestApp(t, dir)

		body, _ := json.Marshal(LoginRequest{Email: "jose@example.com", Password: "secret"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))

		s.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, tokenCookieKey, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("unknown credentials are unauthorized", func(t *testing.T) {
		dir := &directory.MockDirectory{}
		defer dir.AssertExpectations(t)
		dir.On("VerifyCredentials", mock.Anything, "jose@example.com", "wrong").
			Return(types.User{}, directory.ErrNotFound)

		s := newTestApp(t, dir)

		body, _ := json.Marshal(LoginRequest{Email: "jose@example.com", Password: "wrong"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))

		s.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestCreateAccount(t *testing.T) {
	t.Run("missing fields are rejected", func(t *testing.T) {
		s := newTestApp(t, &directory.MockDirectory{})

		body, _ := json.Marshal(RegisterRequest{Email: "jose@example.com"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))

		s.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("creates the account", func(t *testing.T) {
		dir := &directory.MockDirectory{}
		defer dir.AssertExpectations(t)
		dir.On("CreateUser", mock.Anything, directory.CreateUserParams{
			Username:     "jose",
			EmailAddress: "jose@example.com",
			Password:     "secret",
		}).Return(types.User{Id: 1, Username: "jose"}, nil)

		s := newTestApp(t, dir)

		body, _ := json.Marshal(RegisterRequest{Username: "jose", Email: "jose@example.com", Password: "secret"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))

		s.createAccount(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})
}
