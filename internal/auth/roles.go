package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/aanand-mishra/coursemart-api/internal/storage"
	"github.com/aanand-mishra/coursemart-api/internal/types"
)

// UserLookup is the slice of storage the resolver needs.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
}

// RoleResolver maps an identity to its role with a single user lookup.
type RoleResolver struct {
	users UserLookup
}

// NewRoleResolver returns a resolver reading from users.
func NewRoleResolver(users UserLookup) *RoleResolver {
	return &RoleResolver{users: users}
}

// ResolveRole returns the stored role for email. An unknown email resolves
// to types.RoleUnassigned with a nil error; only store failures are errors.
// Roles outside the closed set are treated as unassigned as well.
func (r *RoleResolver) ResolveRole(ctx context.Context, email string) (types.Role, error) {
	user, err := r.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.RoleUnassigned, nil
		}
		return types.RoleUnassigned, fmt.Errorf("resolve role: %w", err)
	}

	role, ok := types.ParseRole(string(user.Role))
	if !ok {
		return types.RoleUnassigned, nil
	}
	return role, nil
}
