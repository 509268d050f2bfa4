package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapforge/assets/internal/signing"
)

type fakeStore struct {
	images map[uuid.UUID]*Image

	insertErr  error
	updateErr  error
	deleteErr  error
	syncErr    error
	projectErr error

	inserted    []*Image
	deletedIDs  []uuid.UUID
	synced      []PermissionUpdate
	purgedRows  []Image
	apiProject  uuid.UUID
	apiOwner    uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{images: map[uuid.UUID]*Image{}}
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return img, nil
}

func (f *fakeStore) Insert(_ context.Context, img *Image) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, img)
	f.images[img.ID] = img
	return nil
}

func (f *fakeStore) UpdateFields(_ context.Context, id uuid.UUID, title *string, ownerID *uuid.UUID) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	img, ok := f.images[id]
	if !ok {
		return ErrNotFound
	}
	if title != nil {
		img.Title = *title
	}
	if ownerID != nil {
		img.OwnerID = *ownerID
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.images[id]; !ok {
		return ErrNotFound
	}
	delete(f.images, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeStore) DeleteAllInProject(_ context.Context, projectID uuid.UUID) ([]Image, error) {
	var out []Image
	for id, img := range f.images {
		if img.ProjectID == projectID {
			out = append(out, *img)
			delete(f.images, id)
		}
	}
	f.purgedRows = out
	return out, nil
}

func (f *fakeStore) ProjectByAPIKey(_ context.Context, apiKey string) (uuid.UUID, uuid.UUID, error) {
	if f.projectErr != nil {
		return uuid.Nil, uuid.Nil, f.projectErr
	}
	return f.apiProject, f.apiOwner, nil
}

func (f *fakeStore) SyncPermissions(_ context.Context, updates []PermissionUpdate) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced = append(f.synced, updates...)
	return nil
}

type fakeObjects struct {
	uploads   map[string][]byte
	uploadErr error
	deleteErr error
	prefixErr error

	deletedKeys     []string
	removedPrefixes []string
	presignedKeys   []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: map[string][]byte{}}
}

func (f *fakeObjects) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.uploads, key)
	f.deletedKeys = append(f.deletedKeys, key)
	return nil
}

func (f *fakeObjects) RemovePrefix(_ context.Context, prefix string) error {
	if f.prefixErr != nil {
		return f.prefixErr
	}
	f.removedPrefixes = append(f.removedPrefixes, prefix)
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	f.presignedKeys = append(f.presignedKeys, key)
	return "https://store.example.com/presigned/" + key, nil
}

func testService(t *testing.T, store *fakeStore, objects *fakeObjects) *Service {
	t.Helper()
	issuer, err := signing.NewIssuer("test-secret", "https://thumbs.example.com", objects, time.Minute)
	require.NoError(t, err)
	return NewService(store, objects, issuer)
}

func TestService_DeliveryURL_DirectMode(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	projectID, imageID := uuid.New(), uuid.New()
	url, err := svc.DeliveryURL(context.Background(), projectID, TypeImages, imageID, nil, nil)
	require.NoError(t, err)

	key := fmt.Sprintf("assets/%s/images/%s.webp", projectID, imageID)
	assert.Equal(t, "https://store.example.com/presigned/"+key, url)
	assert.Equal(t, []string{key}, objects.presignedKeys)
}

func TestService_DeliveryURL_TicketMode(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	projectID, imageID := uuid.New(), uuid.New()
	w, h := 200, 100
	url, err := svc.DeliveryURL(context.Background(), projectID, TypeMapImages, imageID, &w, &h)
	require.NoError(t, err)

	canonical := fmt.Sprintf("200x100/assets/%s/map_images/%s.webp", projectID, imageID)
	assert.Contains(t, url, "https://thumbs.example.com/")
	assert.True(t, len(url) > len(canonical), "url carries a signature segment")
	assert.Contains(t, url, "/"+canonical)
	assert.Empty(t, objects.presignedKeys, "ticket mode never touches the provider")
}

func TestService_DeliveryURL_SingleDimensionFallsBackToDirect(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	w := 200
	url, err := svc.DeliveryURL(context.Background(), uuid.New(), TypeImages, uuid.New(), &w, nil)
	require.NoError(t, err)
	assert.Contains(t, url, "presigned")
}

func TestService_Upload(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	projectID, ownerID := uuid.New(), uuid.New()
	img, err := svc.Upload(context.Background(), projectID, TypeImages, ownerID, "sprite", bytes.NewReader([]byte("webp-bytes")), 10)
	require.NoError(t, err)

	assert.Equal(t, "sprite", img.Title)
	assert.Equal(t, ownerID, img.OwnerID)
	assert.Equal(t, []byte("webp-bytes"), objects.uploads[img.Key()])
	require.Len(t, store.inserted, 1)
	assert.Equal(t, img.ID, store.inserted[0].ID)
}

func TestService_Upload_InsertFailureRemovesObject(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("unique violation")
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	_, err := svc.Upload(context.Background(), uuid.New(), TypeImages, uuid.New(), "x", bytes.NewReader([]byte("d")), 1)
	require.Error(t, err)

	assert.Empty(t, objects.uploads, "stored object must be compensated away")
	require.Len(t, objects.deletedKeys, 1)
}

func TestService_Upload_StorageFailureSkipsInsert(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.uploadErr = errors.New("no space")
	svc := testService(t, store, objects)

	_, err := svc.Upload(context.Background(), uuid.New(), TypeImages, uuid.New(), "x", bytes.NewReader([]byte("d")), 1)
	require.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestService_Update_FieldsAndFile(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	img := &Image{ID: uuid.New(), ProjectID: uuid.New(), OwnerID: uuid.New(), Type: TypeImages, Title: "old"}
	store.images[img.ID] = img

	title := "new title"
	updated, warning, err := svc.Update(context.Background(), img.ID, UpdateInput{
		Title:    &title,
		File:     bytes.NewReader([]byte("replacement")),
		FileSize: 11,
	})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, []byte("replacement"), objects.uploads[img.Key()], "object replaced under the existing key")
}

func TestService_Update_PermissionsScopedToUpdatedImage(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	img := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[img.ID] = img

	// the payload names a different resource; the grant must land on the
	// image the update was authorized for, never the payload's target
	foreign := uuid.New()
	roleID := uuid.New()
	_, warning, err := svc.Update(context.Background(), img.ID, UpdateInput{
		Permissions: []PermissionUpdate{{RelatedID: foreign, RoleID: &roleID}},
	})
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, store.synced, 1)
	assert.Equal(t, img.ID, store.synced[0].RelatedID)
	assert.Equal(t, &roleID, store.synced[0].RoleID)
}

func TestService_Update_PermissionSyncFailureIsWarning(t *testing.T) {
	store := newFakeStore()
	store.syncErr = errors.New("deadlock")
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	img := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[img.ID] = img

	roleID := uuid.New()
	title := "renamed"
	updated, warning, err := svc.Update(context.Background(), img.ID, UpdateInput{
		Title:       &title,
		Permissions: []PermissionUpdate{{RelatedID: img.ID, RoleID: &roleID}},
	})
	require.NoError(t, err, "the primary update must still succeed")
	assert.Equal(t, "permissions not applied", warning)
	assert.Equal(t, "renamed", updated.Title)
}

func TestService_Update_FieldFailureIsHardError(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("connection reset")
	svc := testService(t, store, newFakeObjects())

	title := "x"
	_, _, err := svc.Update(context.Background(), uuid.New(), UpdateInput{Title: &title})
	require.Error(t, err)
}

func TestService_Update_NotFound(t *testing.T) {
	svc := testService(t, newFakeStore(), newFakeObjects())

	_, _, err := svc.Update(context.Background(), uuid.New(), UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	img := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[img.ID] = img
	objects.uploads[img.Key()] = []byte("d")

	warning, err := svc.Delete(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Empty(t, store.images)
	assert.Empty(t, objects.uploads)
}

func TestService_Delete_StorageFailureIsWarning(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.deleteErr = errors.New("timeout")
	svc := testService(t, store, objects)

	img := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[img.ID] = img

	warning, err := svc.Delete(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, "object not removed from storage", warning)
	assert.Empty(t, store.images, "the record is gone regardless")
}

func TestService_BulkDelete_ReportsFailures(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	existing := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[existing.ID] = existing
	missing := uuid.New()

	failed := svc.BulkDelete(context.Background(), []uuid.UUID{existing.ID, missing})
	assert.Equal(t, []uuid.UUID{missing}, failed)
	assert.Empty(t, store.images)
}

func TestService_PurgeProject(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := testService(t, store, objects)

	projectID := uuid.New()
	for i := 0; i < 3; i++ {
		img := &Image{ID: uuid.New(), ProjectID: projectID, Type: TypeImages}
		store.images[img.ID] = img
	}
	other := &Image{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeImages}
	store.images[other.ID] = other

	count, warning, err := svc.PurgeProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{fmt.Sprintf("assets/%s/", projectID)}, objects.removedPrefixes)
	assert.Len(t, store.images, 1, "other projects untouched")
}

func TestObjectKey(t *testing.T) {
	projectID := uuid.MustParse("5e6ad0d3-5c1f-4de5-9b5c-9be73e4d1a43")
	imageID := uuid.MustParse("9f0b65cf-26a4-4a68-b29e-df6619e857f5")

	assert.Equal(t,
		"assets/5e6ad0d3-5c1f-4de5-9b5c-9be73e4d1a43/map_images/9f0b65cf-26a4-4a68-b29e-df6619e857f5.webp",
		ObjectKey(projectID, TypeMapImages, imageID))
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"images", TypeImages, false},
		{"map_images", TypeMapImages, false},
		{"thumbnails", "", true},
		{"", "", true},
		{"Images", "", true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
