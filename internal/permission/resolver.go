// Package permission decides whether an identity may act on a resource,
// combining project ownership, role grants, and per-user permission grants.
package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mapforge/assets/internal/auth"
)

// Store answers the single existence question the resolver needs.
type Store interface {
	// HasGrant reports whether the resource is directly owned by userID, or
	// carries an ACL row matching roleID, or one matching (userID, permissionID).
	HasGrant(ctx context.Context, resourceID, userID uuid.UUID, roleID, permissionID *uuid.UUID) (bool, error)
}

// Resolver evaluates access decisions against a Store.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve reports whether userID may act on resourceID under grant.
//
// Project ownership is an absolute override and short-circuits before any
// query. Otherwise access requires at least one of: direct resource
// ownership, a role grant matching grant.RoleID, or a (user, permission)
// grant matching (userID, grant.PermissionID). A store failure returns
// (false, err) with err wrapping auth.ErrInfrastructure — never true.
func (r *Resolver) Resolve(ctx context.Context, userID, resourceID uuid.UUID, grant *auth.Grant) (bool, error) {
	if grant.IsProjectOwner {
		return true, nil
	}

	ok, err := r.store.HasGrant(ctx, resourceID, userID, grant.RoleID, grant.PermissionID)
	if err != nil {
		return false, fmt.Errorf("grant lookup for resource %s: %v: %w", resourceID, err, auth.ErrInfrastructure)
	}
	return ok, nil
}
