package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("unexpected email claim %q", claims.Email)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != TokenTTL {
		t.Fatalf("expected ttl %v, got %v", TokenTTL, got)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.Verify(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer, _ := NewTokenService("secret-a")
	verifier, _ := NewTokenService("secret-b")

	token, _ := issuer.Issue("alice@example.com")
	if _, err := verifier.Verify(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyRejectsMalformedAndEmpty(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := svc.Verify(token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("token %q: expected ErrUnauthenticated, got %v", token, err)
		}
	}
}

func TestVerifyRejectsOtherSigningMethod(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	claims := Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyRejectsMissingEmail(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	claims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, _ := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if _, err := svc.Verify(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(" "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

type stubUsers struct {
	users map[string]types.User
	err   error
}

func (s stubUsers) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	if s.err != nil {
		return types.User{}, s.err
	}
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return types.User{}, storage.ErrNotFound
}

func TestResolveRole(t *testing.T) {
	resolver := NewRoleResolver(stubUsers{users: map[string]types.User{
		"alice@example.com": {Email: "alice@example.com", Role: types.RoleStudent},
		"odd@example.com":   {Email: "odd@example.com", Role: types.Role("superuser")},
	}})

	role, err := resolver.ResolveRole(context.Background(), "alice@example.com")
	if err != nil || role != types.RoleStudent {
		t.Fatalf("expected student, got %q (%v)", role, err)
	}

	role, err = resolver.ResolveRole(context.Background(), "ghost@example.com")
	if err != nil || role != types.RoleUnassigned {
		t.Fatalf("expected unassigned for unknown user, got %q (%v)", role, err)
	}

	role, err = resolver.ResolveRole(context.Background(), "odd@example.com")
	if err != nil || role != types.RoleUnassigned {
		t.Fatalf("expected unassigned for unknown role value, got %q (%v)", role, err)
	}
}

func TestResolveRolePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	resolver := NewRoleResolver(stubUsers{err: boom})
	if _, err := resolver.ResolveRole(context.Background(), "alice@example.com"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
