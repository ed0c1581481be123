// Package middleware holds the http.Handler wrappers that sit between the
// router and the handlers: authorization gates, rate limiting, request
// logging, metrics and CORS.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/types"
	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RoleLookup resolves the role of a verified identity.
type RoleLookup interface {
	ResolveRole(ctx context.Context, email string) (types.Role, error)
}

// Identity is the caller as seen by the handlers. Role stays
// types.RoleUnassigned on routes that only require a valid token.
type Identity struct {
	Email string
	Role  types.Role
}

type identityKey struct{}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Authenticator composes token verification and role lookup into gates.
//
//	mux.HandleFunc("GET /users", authn.Admin(user.List(store)))
type Authenticator struct {
	tokens TokenVerifier
	roles  RoleLookup
	logger *slog.Logger
}

// NewAuthenticator returns an Authenticator. A nil logger falls back to
// slog.Default().
func NewAuthenticator(tokens TokenVerifier, roles RoleLookup, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, roles: roles, logger: logger}
}

// RequireAuth rejects the request with 401 unless it carries a valid
// bearer token. The verified identity is stored in the request context.
func (a *Authenticator) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Warn("authorization header invalid",
				slog.String("error", err.Error()),
				slog.String("path", r.URL.Path))
			response.WriteError(w, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err))
			return
		}

		claims, err := a.tokens.Verify(token)
		if err != nil {
			a.logger.Warn("token validation failed",
				slog.String("error", err.Error()),
				slog.String("path", r.URL.Path))
			response.WriteError(w, err)
			return
		}

		if rec, ok := w.(*responseRecorder); ok {
			rec.identity = claims.Email
		}
		ctx := WithIdentity(r.Context(), Identity{Email: claims.Email})
		next(w, r.WithContext(ctx))
	}
}

// RequireRole lets the request through only when the authenticated
// identity currently holds role. It must run inside RequireAuth; without
// an identity in context it answers 401.
//
// The role is looked up on every request, so a role change takes effect
// immediately without reissuing tokens.
func (a *Authenticator) RequireRole(role types.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.Email == "" {
			response.WriteError(w, fmt.Errorf("%w: no identity in context", auth.ErrUnauthenticated))
			return
		}

		resolved, err := a.roles.ResolveRole(r.Context(), id.Email)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		if resolved != role {
			a.logger.Warn("role check failed",
				slog.String("email", id.Email),
				slog.String("required", string(role)),
				slog.String("resolved", string(resolved)),
				slog.String("path", r.URL.Path))
			response.WriteError(w, auth.ErrForbidden)
			return
		}

		id.Role = resolved
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// Admin gates next to callers with the admin role.
func (a *Authenticator) Admin(next http.HandlerFunc) http.HandlerFunc {
	return a.RequireAuth(a.RequireRole(types.RoleAdmin, next))
}

// Instructor gates next to callers with the instructor role.
func (a *Authenticator) Instructor(next http.HandlerFunc) http.HandlerFunc {
	return a.RequireAuth(a.RequireRole(types.RoleInstructor, next))
}

// Student gates next to callers with the student role.
func (a *Authenticator) Student(next http.HandlerFunc) http.HandlerFunc {
	return a.RequireAuth(a.RequireRole(types.RoleStudent, next))
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
