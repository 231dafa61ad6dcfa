package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	tokens   map[string]*service.Claims
	tokenErr error
	loginErr error
}

func (f *fakeAuth) ValidateToken(tokenStr string) (*service.Claims, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	c, ok := f.tokens[tokenStr]
	if !ok {
		return nil, service.ErrInvalidToken
	}
	return c, nil
}

func (f *fakeAuth) ValidateStudentSession(context.Context, int, string) error {
	return f.loginErr
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func authRouter(auth *fakeAuth) *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), CheckSingleDeviceSession(auth), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", StudentID(c))
	})
	return r
}

func TestRequireStudentJWT(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]*service.Claims{
		"good": {UserID: 42, TokenType: service.TokenTypeStudent},
	}}
	r := authRouter(auth)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		code   response.ErrCode
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, ""},
		{"query fallback", "", "good", http.StatusOK, ""},
		{"missing", "", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"unknown", "Bearer nope", "", http.StatusUnauthorized, response.ErrTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/me"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code == "" {
				assert.Equal(t, "42", w.Body.String())
			} else {
				assert.Equal(t, tc.code, errCode(t, w))
			}
		})
	}
}

func TestRequireStudentJWT_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{fmt.Errorf("%w: %w", service.ErrInvalidToken, jwt.ErrTokenExpired), http.StatusUnauthorized, response.ErrTokenExpired},
		{service.ErrNotStudentToken, http.StatusForbidden, response.ErrStudentAccessOnly},
	}
	for _, tc := range cases {
		r := authRouter(&fakeAuth{tokenErr: tc.err})
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, errCode(t, w))
	}
}

func TestCheckSingleDeviceSession(t *testing.T) {
	claims := map[string]*service.Claims{"good": {UserID: 1, TokenType: service.TokenTypeStudent}}
	cases := []struct {
		loginErr error
		status   int
	}{
		{service.ErrLoginInvalidated, http.StatusUnauthorized},
		{service.ErrNoActiveLogin, http.StatusUnauthorized},
		{errors.New("redis: connection refused"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		r := authRouter(&fakeAuth{tokens: claims, loginErr: tc.loginErr})
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.loginErr)
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 3, time.Minute)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"))
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestRateLimiter_PerStudent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := &fakeAuth{tokens: map[string]*service.Claims{
		"s1": {UserID: 1, TokenType: service.TokenTypeStudent},
		"s2": {UserID: 2, TokenType: service.TokenTypeStudent},
	}}
	rl := NewRateLimiter(ctx, 1, time.Minute)
	r := gin.New()
	r.PUT("/a", RequireStudentJWT(auth), rl.PerStudent(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodPut, "/a", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do("s1"))
	assert.Equal(t, http.StatusTooManyRequests, do("s1"))
	assert.Equal(t, http.StatusNoContent, do("s2"))
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("exam paper ", 500)
	r := gin.New()
	r.Use(Brotli(), NoStore())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "no-store, private", w.Header().Get("Cache-Control"))
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(plain))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/large", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, large, w.Body.String())
}
