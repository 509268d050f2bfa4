// Package image manages stored image assets: their records, their objects in
// storage, and the ACL rows attached to them.
package image

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the class of a stored image. The set is closed and doubles as the
// storage key segment.
type Type string

// Image classes.
const (
	TypeImages    Type = "images"
	TypeMapImages Type = "map_images"
)

// ParseType validates a path segment as an image class.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeImages, TypeMapImages:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown image type %q", s)
}

func (t Type) String() string { return string(t) }

// ObjectKey returns the canonical storage key for an image. Every stored
// object lives under this layout; the resize service and the signing string
// depend on it verbatim.
func ObjectKey(projectID uuid.UUID, t Type, imageID uuid.UUID) string {
	return fmt.Sprintf("assets/%s/%s/%s.webp", projectID, t, imageID)
}

// ProjectPrefix returns the storage prefix holding all of a project's objects.
func ProjectPrefix(projectID uuid.UUID) string {
	return fmt.Sprintf("assets/%s/", projectID)
}

// Image is a stored image record.
type Image struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	ProjectID uuid.UUID `json:"projectId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the image's canonical storage key.
func (i *Image) Key() string {
	return ObjectKey(i.ProjectID, i.Type, i.ID)
}

// PermissionUpdate is one requested ACL change for a resource: either a role
// grant (RoleID set, UserID and PermissionID nil) or a user grant (UserID and
// PermissionID set). Entries matching neither shape are skipped.
type PermissionUpdate struct {
	RelatedID    uuid.UUID  `json:"related_id"`
	UserID       *uuid.UUID `json:"user_id"`
	RoleID       *uuid.UUID `json:"role_id"`
	PermissionID *uuid.UUID `json:"permission_id"`
}

// ErrNotFound is returned when an image does not exist.
var ErrNotFound = errors.New("image not found")

// ErrUnknownAPIKey is returned when no project matches an extension api key.
var ErrUnknownAPIKey = errors.New("unknown api key")
