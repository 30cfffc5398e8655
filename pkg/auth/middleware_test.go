package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
)

const (
	testSecret = "test-secret"
	testUserID = "5f0c6a8e-3b0e-4c43-9d1e-2b8f9a7f6c01"
)

type recordingProfiles struct {
	calls []string
}

func (p *recordingProfiles) EnsureUser(ctx context.Context, id, email, displayName string) error {
	p.calls = append(p.calls, id+"|"+email)
	return nil
}

func newTestMiddleware(profiles ProfileStore) *Middleware {
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, JWTIssuer: "idp"}}
	return NewMiddleware(cfg, slog.Default(), profiles)
}

func sign(t *testing.T, claims TokenClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() TokenClaims {
	return TokenClaims{
		Email: "Ada@Example.com",
		Name:  "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testUserID,
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func serve(m *Middleware, header string) (*httptest.ResponseRecorder, *AuthUser, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *AuthUser
	err := m.RequireAuth()(func(c echo.Context) error {
		seen = GetUser(c)
		return c.NoContent(http.StatusNoContent)
	})(c)
	return rec, seen, err
}

func TestRequireAuth_ValidToken(t *testing.T) {
	profiles := &recordingProfiles{}
	m := newTestMiddleware(profiles)

	rec, user, err := serve(m, "Bearer "+sign(t, validClaims(), testSecret))

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, testUserID, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, []string{testUserID + "|ada@example.com"}, profiles.calls)
}

func TestRequireAuth_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	badSubject := validClaims()
	badSubject.Subject = "not-a-uuid"

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "unauthorized"},
		{"not bearer", "Basic abc", "unauthorized"},
		{"wrong secret", "Bearer " + sign(t, validClaims(), "other"), "invalid_token"},
		{"expired", "Bearer " + sign(t, expired, testSecret), "invalid_token"},
		{"wrong issuer", "Bearer " + sign(t, wrongIssuer, testSecret), "invalid_token"},
		{"subject not uuid", "Bearer " + sign(t, badSubject, testSecret), "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &recordingProfiles{}
			_, user, err := serve(newTestMiddleware(profiles), tt.header)

			require.Error(t, err)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Nil(t, user)
			assert.Empty(t, profiles.calls)
		})
	}
}

func TestRequireAuth_DebugUserOutsideProduction(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{DebugUserID: testUserID}}
	_, user, err := serve(NewMiddleware(cfg, slog.Default(), nil), "")
	require.NoError(t, err)
	assert.Equal(t, testUserID, user.ID)

	cfg.Environment = "production"
	_, _, err = serve(NewMiddleware(cfg, slog.Default(), nil), "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
