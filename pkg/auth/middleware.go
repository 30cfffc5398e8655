package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

var Module = fx.Module("auth",
	fx.Provide(NewMiddleware),
)

// AuthUser represents an authenticated user
type AuthUser struct {
	// ID is the user's UUID, taken from the token subject.
	ID string `json:"id"`

	Email string `json:"email,omitempty"`

	DisplayName string `json:"displayName,omitempty"`
}

type contextKey string

// UserContextKey is where RequireAuth stores the *AuthUser.
const UserContextKey contextKey = "auth_user"

// GetUser retrieves the authenticated user from the Echo context
func GetUser(c echo.Context) *AuthUser {
	if user, ok := c.Get(string(UserContextKey)).(*AuthUser); ok {
		return user
	}
	return nil
}

// SetUser stores user on the Echo context.
func SetUser(c echo.Context, user *AuthUser) {
	c.Set(string(UserContextKey), user)
}

// ProfileStore mirrors token identities into the local users table so that
// foreign keys and email lookups work for every authenticated caller.
type ProfileStore interface {
	EnsureUser(ctx context.Context, id, email, displayName string) error
}

// TokenClaims are the claims read from an identity provider token
type TokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Middleware verifies HS256 bearer tokens issued by the identity provider.
type Middleware struct {
	cfg      *config.Config
	log      *slog.Logger
	profiles ProfileStore
	now      func() time.Time
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(cfg *config.Config, log *slog.Logger, profiles ProfileStore) *Middleware {
	return &Middleware{
		cfg:      cfg,
		log:      log.With(logger.Scope("auth")),
		profiles: profiles,
		now:      time.Now,
	}
}

// RequireAuth returns middleware that requires authentication
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := m.authenticate(c)
			if err != nil {
				m.log.Debug("authentication failed", logger.Error(err))
				return err
			}
			SetUser(c, user)
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(c echo.Context) (*AuthUser, error) {
	token := extractToken(c.Request())
	if token == "" {
		if id := m.cfg.Auth.DebugUserID; id != "" && !m.cfg.IsProduction() {
			return &AuthUser{ID: id}, nil
		}
		return nil, apperror.ErrUnauthorized
	}

	claims, err := m.parse(token)
	if err != nil {
		return nil, apperror.ErrInvalidToken.WithInternal(err)
	}

	user := &AuthUser{
		ID:          claims.Subject,
		Email:       strings.ToLower(strings.TrimSpace(claims.Email)),
		DisplayName: claims.Name,
	}
	if m.profiles != nil {
		if err := m.profiles.EnsureUser(c.Request().Context(), user.ID, user.Email, user.DisplayName); err != nil {
			m.log.Error("failed to sync user profile",
				slog.String("user_id", user.ID),
				logger.Error(err),
			)
			return nil, apperror.ErrInternal.WithInternal(err)
		}
	}
	return user, nil
}

func (m *Middleware) parse(token string) (*TokenClaims, error) {
	if m.cfg.Auth.JWTSecret == "" {
		return nil, errors.New("token verification is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Auth.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Auth.JWTIssuer))
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(m.cfg.Auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("subject is not a user id: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("token carries no email")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
