package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles all image database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get fetches an image by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`SELECT id, title, project_id, owner_id, type, created_at
		 FROM images WHERE id = $1`,
		id,
	).Scan(&img.ID, &img.Title, &img.ProjectID, &img.OwnerID, &img.Type, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// Insert stores a new image record.
func (r *Repository) Insert(ctx context.Context, img *Image) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO images (id, title, project_id, type, owner_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		img.ID, img.Title, img.ProjectID, img.Type, img.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// UpdateFields applies the optional title and owner changes. Nil fields are
// left untouched.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, title *string, ownerID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE images
		 SET title = COALESCE($2, title), owner_id = COALESCE($3, owner_id)
		 WHERE id = $1`,
		id, title, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an image row and the ACL rows attached to it.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM entity_permissions WHERE related_id = $1`, id); err != nil {
		return fmt.Errorf("delete image grants: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// DeleteAllInProject removes every image row of a project, returning the
// deleted records so the caller can clean up storage.
func (r *Repository) DeleteAllInProject(ctx context.Context, projectID uuid.UUID) ([]Image, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM images WHERE project_id = $1
		 RETURNING id, title, project_id, owner_id, type, created_at`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete project images: %w", err)
	}
	defer rows.Close()

	var deleted []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.Title, &img.ProjectID, &img.OwnerID, &img.Type, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deleted image: %w", err)
		}
		deleted = append(deleted, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete project images: %w", err)
	}
	return deleted, nil
}

// ProjectByAPIKey resolves an extension api key to its project and owner.
func (r *Repository) ProjectByAPIKey(ctx context.Context, apiKey string) (projectID, ownerID uuid.UUID, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT id, owner_id FROM projects WHERE api_key = $1`,
		apiKey,
	).Scan(&projectID, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, uuid.Nil, ErrUnknownAPIKey
	}
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("project by api key: %w", err)
	}
	return projectID, ownerID, nil
}

// SyncPermissions replaces ACL rows per requested update. Each entry runs as
// one transaction (delete the grant shape being replaced, insert the new row)
// so a reader never sees a resource stripped of its grants mid-update. Any
// step failure rolls the entry back and aborts the sync.
func (r *Repository) SyncPermissions(ctx context.Context, updates []PermissionUpdate) error {
	for _, perm := range updates {
		switch {
		case perm.RoleID != nil && perm.UserID == nil && perm.PermissionID == nil:
			if err := r.syncRoleGrant(ctx, perm.RelatedID, *perm.RoleID); err != nil {
				return err
			}
		case perm.UserID != nil && perm.PermissionID != nil:
			if err := r.syncUserGrant(ctx, perm.RelatedID, *perm.UserID, *perm.PermissionID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repository) syncRoleGrant(ctx context.Context, relatedID, roleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin role grant sync: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM entity_permissions WHERE related_id = $1 AND role_id IS NOT NULL`,
		relatedID,
	); err != nil {
		return fmt.Errorf("clear role grants for %s: %w", relatedID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO entity_permissions (related_id, role_id) VALUES ($1, $2)
		 ON CONFLICT (related_id, role_id) WHERE role_id IS NOT NULL DO NOTHING`,
		relatedID, roleID,
	); err != nil {
		return fmt.Errorf("insert role grant for %s: %w", relatedID, err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) syncUserGrant(ctx context.Context, relatedID, userID, permissionID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin user grant sync: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM entity_permissions WHERE related_id = $1 AND user_id = $2`,
		relatedID, userID,
	); err != nil {
		return fmt.Errorf("clear user grants for %s: %w", relatedID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO entity_permissions (related_id, user_id, permission_id) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, related_id, permission_id) WHERE user_id IS NOT NULL DO NOTHING`,
		relatedID, userID, permissionID,
	); err != nil {
		return fmt.Errorf("insert user grant for %s: %w", relatedID, err)
	}

	return tx.Commit(ctx)
}
