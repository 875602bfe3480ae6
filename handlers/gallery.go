package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/imagebank/backend/database"
	"github.com/imagebank/backend/gallery"
)

// uploads buffered in memory up to this size, larger ones spill to disk
const maxUploadMemory = 32 << 20

type GalleryHandler struct {
	Service *gallery.Service
}

func NewGalleryHandler(service *gallery.Service) *GalleryHandler {
	return &GalleryHandler{Service: service}
}

func imageIDParam(r *http.Request) (uint, bool) {
	idStr := chi.URLParam(r, "image_id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ListImages serves the gallery index: all images with owner usernames,
// newest first unless a sort query parameter says otherwise.
func (gh *GalleryHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	sortOrder := r.URL.Query().Get("sort")
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "unknown sort order: "+sortOrder)
		return
	}

	entries, err := gh.Service.List(sortOrder)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetImage returns one image record with its rectangles.
func (gh *GalleryHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid image ID")
		return
	}

	entry, err := gh.Service.Retrieve(id, CurrentUser(r), false)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	faces, err := gh.Service.Rectangles(id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"image": entry,
		"faces": faces,
	})
}

// UploadImage accepts a multipart form with a "file" part and an "about"
// caption field.
func (gh *GalleryHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", "file needed")
		return
	}
	defer file.Close()

	img, err := gh.Service.Create(CurrentUser(r), r.FormValue("about"), header.Filename, file)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "file uploaded successfully",
		"image":   img,
	})
}

// ShowImage streams raw blob bytes by filename. Deliberately unauthenticated;
// it backs <img src=""> on the public index.
func (gh *GalleryHandler) ShowImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "missing filename")
		return
	}

	file, info, err := gh.Service.Show(filename)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	defer file.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

// DeleteImage removes the image row, its rectangles and the blob. Owner or
// admin only.
func (gh *GalleryHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid image ID")
		return
	}

	if err := gh.Service.Delete(id, CurrentUser(r)); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "image deleted"})
}

type editPayload struct {
	About string `json:"about"`
	X1    *int   `json:"x1,omitempty"`
	Y1    *int   `json:"y1,omitempty"`
	X2    *int   `json:"x2,omitempty"`
	Y2    *int   `json:"y2,omitempty"`
}

func (p *editPayload) rectangle() (*gallery.Rectangle, bool) {
	if p.X1 == nil && p.Y1 == nil && p.X2 == nil && p.Y2 == nil {
		return nil, true
	}
	if p.X1 == nil || p.Y1 == nil || p.X2 == nil || p.Y2 == nil {
		return nil, false
	}
	return &gallery.Rectangle{X1: *p.X1, Y1: *p.Y1, X2: *p.X2, Y2: *p.Y2}, true
}

// EditImage updates the caption and optionally appends one rectangle.
// Responds with the image's full rectangle set for re-rendering.
func (gh *GalleryHandler) EditImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid image ID")
		return
	}

	var payload editPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid request payload")
		return
	}
	rect, ok := payload.rectangle()
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", "rectangle needs all four coordinates")
		return
	}

	faces, err := gh.Service.Edit(id, CurrentUser(r), payload.About, rect)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"faces": faces})
}

// DetectFaces runs the cloud detection call for an image and stores the
// returned rectangles.
func (gh *GalleryHandler) DetectFaces(w http.ResponseWriter, r *http.Request) {
	id, ok := imageIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid image ID")
		return
	}

	outcome, err := gh.Service.DetectFaces(r.Context(), id, CurrentUser(r))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
