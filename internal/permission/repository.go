package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// HasGrant runs one existence query covering the three access shapes.
// NULL role or permission ids never match an ACL row: comparing against
// NULL is false in SQL, so an absent id in the grant context simply
// disables that branch.
func (r *Repository) HasGrant(ctx context.Context, resourceID, userID uuid.UUID, roleID, permissionID *uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM images WHERE id = $1 AND owner_id = $2)
		     OR EXISTS (SELECT 1 FROM entity_permissions WHERE related_id = $1 AND role_id = $3)
		     OR EXISTS (SELECT 1 FROM entity_permissions WHERE related_id = $1 AND user_id = $2 AND permission_id = $4)`,
		resourceID, userID, roleID, permissionID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query grants: %w", err)
	}
	return ok, nil
}
