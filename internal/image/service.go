package image

import (
	"context"
	"fmt"
	"io"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/mapforge/assets/internal/signing"
	"github.com/mapforge/assets/internal/storage"
)

// Store is the persistence surface the service needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Image, error)
	Insert(ctx context.Context, img *Image) error
	UpdateFields(ctx context.Context, id uuid.UUID, title *string, ownerID *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllInProject(ctx context.Context, projectID uuid.UUID) ([]Image, error)
	ProjectByAPIKey(ctx context.Context, apiKey string) (projectID, ownerID uuid.UUID, err error)
	SyncPermissions(ctx context.Context, updates []PermissionUpdate) error
}

// Service contains the business logic for image assets.
type Service struct {
	store   Store
	objects storage.Storage
	issuer  *signing.Issuer
}

// NewService creates a new image Service.
func NewService(store Store, objects storage.Storage, issuer *signing.Issuer) *Service {
	return &Service{store: store, objects: objects, issuer: issuer}
}

// DeliveryURL returns the URL a client should fetch the image from. With
// resize dimensions it is an HMAC-signed ticket for the resize service;
// without, a provider-presigned URL for the original object.
func (s *Service) DeliveryURL(ctx context.Context, projectID uuid.UUID, t Type, imageID uuid.UUID, width, height *int) (string, error) {
	key := ObjectKey(projectID, t, imageID)
	if width != nil && height != nil {
		return s.issuer.Ticket(*width, *height, key), nil
	}
	return s.issuer.Direct(ctx, key)
}

// Upload stores one object under a fresh id and records it. If the record
// insert fails the stored object is removed again so storage and database
// never disagree.
func (s *Service) Upload(ctx context.Context, projectID uuid.UUID, t Type, ownerID uuid.UUID, title string, r io.Reader, size int64) (*Image, error) {
	img := &Image{
		ID:        uuid.New(),
		Title:     title,
		ProjectID: projectID,
		OwnerID:   ownerID,
		Type:      t,
	}

	if err := s.objects.Upload(ctx, img.Key(), r, size, "image/webp"); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	if err := s.store.Insert(ctx, img); err != nil {
		if delErr := s.objects.Delete(ctx, img.Key()); delErr != nil {
			log.Printf("[ERROR] image: orphaned object %s after failed insert: %v", img.Key(), delErr)
		}
		return nil, err
	}

	return img, nil
}

// ProjectForAPIKey resolves an extension api key to its project and owner.
func (s *Service) ProjectForAPIKey(ctx context.Context, apiKey string) (projectID, ownerID uuid.UUID, err error) {
	return s.store.ProjectByAPIKey(ctx, apiKey)
}

// UpdateInput carries the optional parts of an image update. Nil fields are
// not touched.
type UpdateInput struct {
	Title       *string
	OwnerID     *uuid.UUID
	Permissions []PermissionUpdate
	File        io.Reader
	FileSize    int64
}

// Update applies field changes, syncs ACL rows, and replaces the stored
// object, in that order. A failed permission sync does not fail the update:
// the primary change stands and the returned warning names what was skipped.
// A failed field update or object replacement is a hard error.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Image, string, error) {
	var warning string

	if in.Title != nil || in.OwnerID != nil {
		if err := s.store.UpdateFields(ctx, id, in.Title, in.OwnerID); err != nil {
			return nil, "", err
		}
	}

	if len(in.Permissions) > 0 {
		// grants are scoped to the image this update was authorized for; a
		// payload naming another resource must not attach rows to it
		for i := range in.Permissions {
			in.Permissions[i].RelatedID = id
		}
		if err := s.store.SyncPermissions(ctx, in.Permissions); err != nil {
			log.Printf("[WARN] image: permission sync failed for %s: %v", id, err)
			warning = "permissions not applied"
		}
	}

	img, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if in.File != nil {
		if err := s.objects.Upload(ctx, img.Key(), in.File, in.FileSize, "image/webp"); err != nil {
			return nil, "", fmt.Errorf("replace object: %w", err)
		}
	}

	return img, warning, nil
}

// Delete removes the record and its stored object. A storage failure after
// the row is gone is reported as a warning, not an error: the record is the
// source of truth and the object is unreachable without it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	img, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return "", err
	}

	if err := s.objects.Delete(ctx, img.Key()); err != nil {
		log.Printf("[WARN] image: object delete failed for %s: %v", img.Key(), err)
		return "object not removed from storage", nil
	}
	return "", nil
}

// BulkDelete deletes each id independently and reports the ones that failed.
func (s *Service) BulkDelete(ctx context.Context, ids []uuid.UUID) (failed []uuid.UUID) {
	for _, id := range ids {
		if _, err := s.Delete(ctx, id); err != nil {
			log.Printf("[WARN] image: bulk delete failed for %s: %v", id, err)
			failed = append(failed, id)
		}
	}
	return failed
}

// PurgeProject removes every image record of a project and prefix-deletes
// its objects from storage.
func (s *Service) PurgeProject(ctx context.Context, projectID uuid.UUID) (int, string, error) {
	deleted, err := s.store.DeleteAllInProject(ctx, projectID)
	if err != nil {
		return 0, "", err
	}

	if err := s.objects.RemovePrefix(ctx, ProjectPrefix(projectID)); err != nil {
		log.Printf("[WARN] image: prefix delete failed for project %s: %v", projectID, err)
		return len(deleted), "objects not removed from storage", nil
	}
	return len(deleted), "", nil
}
