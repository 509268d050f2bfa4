package image

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/mapforge/assets/internal/auth"
	"github.com/mapforge/assets/internal/middleware"
	"github.com/mapforge/assets/internal/response"
)

// maxUploadSize bounds a whole multipart request body.
const maxUploadSize = 25 << 20

// deliveryCacheControl is the hint attached to both delivery URL modes.
const deliveryCacheControl = "max-age=3600"

// Authorizer resolves per-resource access for operations whose resource ids
// arrive in the request body rather than the path.
type Authorizer interface {
	Resolve(ctx context.Context, userID, resourceID uuid.UUID, grant *auth.Grant) (bool, error)
}

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	svc   *Service
	authz Authorizer
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service, authz Authorizer) *Handler {
	return &Handler{svc: svc, authz: authz}
}

type uploadResult struct {
	Uploaded []Image  `json:"uploaded"`
	Failed   []string `json:"failed,omitempty"`
}

type bulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type bulkDeleteResult struct {
	Deleted int         `json:"deleted"`
	Failed  []uuid.UUID `json:"failed,omitempty"`
}

type purgeResult struct {
	Deleted int `json:"deleted"`
}

// DeliveryURL godoc
//
//	@Summary		Get image delivery URL
//	@Description	Returns a presigned URL for the original object, or an HMAC-signed resize ticket when width and height are given.
//	@Tags			images
//	@Produce		plain
//	@Param			project_id	path	string	true	"project id"
//	@Param			image_type	path	string	true	"images or map_images"
//	@Param			image_id	path	string	true	"image id"
//	@Param			width		query	int		false	"resize width"
//	@Param			height		query	int		false	"resize height"
//	@Success		200	{string}	string
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Router			/assets/{project_id}/{image_type}/{image_id} [get]
func (h *Handler) DeliveryURL(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		response.BadRequest(w, "invalid project id")
		return
	}
	imageType, err := ParseType(chi.URLParam(r, "image_type"))
	if err != nil {
		response.BadRequest(w, "invalid image type")
		return
	}
	imageID, err := uuid.Parse(chi.URLParam(r, "image_id"))
	if err != nil {
		response.BadRequest(w, "invalid image id")
		return
	}

	width, ok := queryInt(r, "width")
	if !ok {
		response.BadRequest(w, "invalid width")
		return
	}
	height, ok := queryInt(r, "height")
	if !ok {
		response.BadRequest(w, "invalid height")
		return
	}

	url, err := h.svc.DeliveryURL(r.Context(), projectID, imageType, imageID, width, height)
	if err != nil {
		log.Printf("[ERROR] image: delivery url for %s/%s/%s: %v", projectID, imageType, imageID, err)
		response.InternalError(w)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", deliveryCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(url))
}

// Upload godoc
//
//	@Summary		Upload images
//	@Description	Stores each multipart file under a fresh id in the given project and class. Field names become titles.
//	@Tags			images
//	@Accept			mpfd
//	@Produce		json
//	@Param			project_id	path	string	true	"project id"
//	@Param			image_type	path	string	true	"images or map_images"
//	@Success		200	{object}	response.Envelope{data=uploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Router			/upload/{project_id}/{image_type} [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		response.Unauthorized(w)
		return
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		response.BadRequest(w, "invalid project id")
		return
	}
	imageType, err := ParseType(chi.URLParam(r, "image_type"))
	if err != nil {
		response.BadRequest(w, "invalid image type")
		return
	}

	result, ok := h.storeFiles(w, r, projectID, imageType, claims.UserID)
	if !ok {
		return
	}

	if len(result.Failed) > 0 {
		response.Partial(w, result, "some files were not uploaded")
		return
	}
	response.OK(w, result)
}

// ExtensionUpload godoc
//
//	@Summary		Upload images via extension api key
//	@Description	Authenticates with the x-api-key header against the projects table; files are stored as the project owner's images.
//	@Tags			images
//	@Accept			mpfd
//	@Produce		json
//	@Param			x-api-key	header	string	true	"project api key"
//	@Success		200	{object}	response.Envelope{data=uploadResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Router			/extension/upload [post]
func (h *Handler) ExtensionUpload(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		response.Unauthorized(w)
		return
	}

	projectID, ownerID, err := h.svc.ProjectForAPIKey(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, ErrUnknownAPIKey) {
			response.Unauthorized(w)
			return
		}
		log.Printf("[ERROR] image: api key lookup: %v", err)
		response.InternalError(w)
		return
	}

	result, ok := h.storeFiles(w, r, projectID, TypeImages, ownerID)
	if !ok {
		return
	}

	if len(result.Failed) > 0 {
		response.Partial(w, result, "some files were not uploaded")
		return
	}
	response.OK(w, result)
}

// Update godoc
//
//	@Summary		Update an image
//	@Description	Applies optional title/owner changes, syncs sharing permissions, and replaces the stored object when a file is attached. A failed permission sync is reported as a warning on an otherwise successful update.
//	@Tags			images
//	@Accept			mpfd
//	@Produce		json
//	@Param			id			path		string	true	"image id"
//	@Param			title		formData	string	false	"new title"
//	@Param			owner_id	formData	string	false	"new owner id"
//	@Param			permissions	formData	string	false	"JSON array of permission updates"
//	@Param			file		formData	file	false	"replacement image"
//	@Success		200	{object}	response.Envelope{data=Image}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{id} [post]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid image id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		response.BadRequest(w, "invalid multipart body")
		return
	}

	var in UpdateInput

	if vals, found := r.MultipartForm.Value["title"]; found && len(vals) > 0 {
		in.Title = &vals[0]
	}
	if vals, found := r.MultipartForm.Value["owner_id"]; found && len(vals) > 0 {
		ownerID, err := uuid.Parse(vals[0])
		if err != nil {
			response.BadRequest(w, "invalid owner id")
			return
		}
		in.OwnerID = &ownerID
	}
	if vals, found := r.MultipartForm.Value["permissions"]; found && len(vals) > 0 {
		if err := json.Unmarshal([]byte(vals[0]), &in.Permissions); err != nil {
			response.BadRequest(w, "invalid permissions payload")
			return
		}
	}

	var file multipart.File
	if headers, found := r.MultipartForm.File["file"]; found && len(headers) > 0 {
		file, err = headers[0].Open()
		if err != nil {
			response.BadRequest(w, "unreadable file")
			return
		}
		defer file.Close()
		in.File = file
		in.FileSize = headers[0].Size
	}

	img, warning, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Printf("[ERROR] image: update %s: %v", id, err)
		response.InternalError(w)
		return
	}

	if warning != "" {
		response.Partial(w, img, warning)
		return
	}
	response.OK(w, img)
}

// Delete godoc
//
//	@Summary		Delete an image
//	@Tags			images
//	@Produce		json
//	@Param			id	path	string	true	"image id"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid image id")
		return
	}

	warning, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Printf("[ERROR] image: delete %s: %v", id, err)
		response.InternalError(w)
		return
	}

	if warning != "" {
		response.Partial(w, nil, warning)
		return
	}
	response.OK(w, nil)
}

// BulkDelete godoc
//
//	@Summary		Delete multiple images
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=bulkDeleteResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Router			/images [delete]
func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		response.Unauthorized(w)
		return
	}
	grant, ok := middleware.GrantFrom(r.Context())
	if !ok {
		response.InternalError(w)
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		response.BadRequest(w, "ids must not be empty")
		return
	}

	// each id gets its own access decision; denied ids are reported in the
	// failed list without saying why
	var allowed, failed []uuid.UUID
	for _, id := range req.IDs {
		ok, err := h.authz.Resolve(r.Context(), claims.UserID, id, grant)
		if err != nil || !ok {
			log.Printf("[WARN] image: bulk delete denied for %s (user %s): %v", id, claims.UserID, err)
			failed = append(failed, id)
			continue
		}
		allowed = append(allowed, id)
	}

	// count from the allowed set, not the request: duplicate ids in the body
	// must not skew the tally
	svcFailed := h.svc.BulkDelete(r.Context(), allowed)
	failed = append(failed, svcFailed...)
	result := bulkDeleteResult{Deleted: len(allowed) - len(svcFailed), Failed: failed}

	if len(failed) > 0 {
		response.Partial(w, result, "some images were not deleted")
		return
	}
	response.OK(w, result)
}

// PurgeProject godoc
//
//	@Summary		Delete all images of a project
//	@Tags			images
//	@Produce		json
//	@Param			project_id	path	string	true	"project id"
//	@Success		200	{object}	response.Envelope{data=purgeResult}
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Router			/projects/{project_id}/images [delete]
func (h *Handler) PurgeProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		response.BadRequest(w, "invalid project id")
		return
	}

	count, warning, err := h.svc.PurgeProject(r.Context(), projectID)
	if err != nil {
		log.Printf("[ERROR] image: purge project %s: %v", projectID, err)
		response.InternalError(w)
		return
	}

	if warning != "" {
		response.Partial(w, purgeResult{Deleted: count}, warning)
		return
	}
	response.OK(w, purgeResult{Deleted: count})
}

// storeFiles uploads every named multipart file. It writes a 400 itself on a
// malformed body and reports ok=false; otherwise per-file failures end up in
// the result's Failed list.
func (h *Handler) storeFiles(w http.ResponseWriter, r *http.Request, projectID uuid.UUID, t Type, ownerID uuid.UUID) (uploadResult, bool) {
	var result uploadResult

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		response.BadRequest(w, "invalid multipart body")
		return result, false
	}

	for field, headers := range r.MultipartForm.File {
		if field == "" {
			continue
		}
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				log.Printf("[WARN] image: open multipart file %q: %v", field, err)
				result.Failed = append(result.Failed, field)
				continue
			}

			img, err := h.svc.Upload(r.Context(), projectID, t, ownerID, field, f, fh.Size)
			_ = f.Close()
			if err != nil {
				log.Printf("[WARN] image: upload %q to project %s: %v", field, projectID, err)
				result.Failed = append(result.Failed, field)
				continue
			}
			result.Uploaded = append(result.Uploaded, *img)
		}
	}

	return result, true
}

// queryInt parses an optional integer query parameter. ok is false only when
// the parameter is present but not a positive integer.
func queryInt(r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return nil, false
	}
	return &v, true
}
