package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/imagebank/backend/blobstore"
	"github.com/imagebank/backend/facecloud"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/repository"
	"github.com/imagebank/backend/utils"
)

// Detector is the face detection collaborator; satisfied by
// *facecloud.Client.
type Detector interface {
	Detect(ctx context.Context, image io.Reader) (*facecloud.Result, error)
	Configured() bool
}

// Rectangle is a manually annotated bounding box submission.
type Rectangle struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// DetectionOutcome is the result of a cloud detection call: the inserted
// rectangles, the name of the cached raw-response document (empty when no
// faces were found) and a user-facing notice.
type DetectionOutcome struct {
	Faces         []models.Face `json:"faces"`
	CacheDocument string        `json:"cache_document,omitempty"`
	Message       string        `json:"message"`
}

// Service orchestrates the image workflow: upload, viewing, annotation,
// cloud detection and deletion, keeping the image store, face store and
// blob store consistent with each other.
type Service struct {
	images   repository.ImageRepository
	faces    repository.FaceRepository
	blobs    *blobstore.Store
	detector Detector
	allowed  map[string]bool
}

func NewService(images repository.ImageRepository, faces repository.FaceRepository, blobs *blobstore.Store, detector Detector, allowedExtensions map[string]bool) *Service {
	return &Service{
		images:   images,
		faces:    faces,
		blobs:    blobs,
		detector: detector,
		allowed:  allowedExtensions,
	}
}

// List returns all images joined with their owner's username. The default
// order is creation time descending.
func (s *Service) List(sortOrder string) ([]repository.ImageListEntry, error) {
	return s.images.List(sortOrder)
}

// Retrieve fetches one image with its owner's username. With
// requireOwnership set, only the owning user or an administrator passes;
// this predicate gates every mutating operation.
func (s *Service) Retrieve(id uint, caller *models.User, requireOwnership bool) (*repository.ImageListEntry, error) {
	entry, err := s.images.GetWithAuthor(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	if requireOwnership {
		if caller == nil || (entry.AuthorID != caller.ID && !caller.IsAdmin) {
			return nil, fmt.Errorf("image %d: %w", id, ErrForbidden)
		}
	}
	return entry, nil
}

// Rectangles returns the stored face rectangles for an image.
func (s *Service) Rectangles(id uint) ([]models.Face, error) {
	img, err := s.images.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if img.Faces == nil {
		return []models.Face{}, nil
	}
	return img.Faces, nil
}

func (s *Service) allowedExtension(filename string) (string, bool) {
	if !strings.Contains(filename, ".") {
		return "", false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return ext, s.allowed[ext]
}

// Create validates and stores a new upload. The image row, the blob and
// the author's upload count change together: the blob is written before
// the metadata transaction commits and removed again if the commit fails.
func (s *Service) Create(caller *models.User, caption, uploadName string, content io.Reader) (*models.Image, error) {
	if caller == nil {
		return nil, fmt.Errorf("upload: %w", ErrForbidden)
	}
	if strings.TrimSpace(caption) == "" {
		return nil, &ValidationError{Msg: "description needed"}
	}
	if strings.TrimSpace(uploadName) == "" {
		return nil, &ValidationError{Msg: "file needed"}
	}
	ext, ok := s.allowedExtension(uploadName)
	if !ok {
		return nil, &ValidationError{Msg: "upload failed, check filename/path"}
	}

	img := &models.Image{AuthorID: caller.ID, About: caption}
	var blobWritten string
	err := s.images.Create(img, ext, func(filename string) error {
		if s.blobs.Exists(filename) {
			return fmt.Errorf("blob %s: %w", filename, ErrConflict)
		}
		if err := s.blobs.Save(filename, content); err != nil {
			return err
		}
		blobWritten = filename
		return nil
	})
	if err != nil {
		// compensate for a blob that made it to disk before the
		// transaction failed
		if blobWritten != "" {
			if delErr := s.blobs.Delete(blobWritten); delErr != nil {
				log.Printf("gallery: failed to clean up orphaned blob %s: %v", blobWritten, delErr)
			}
		}
		return nil, err
	}

	s.captureMetadata(img)
	return img, nil
}

// captureMetadata records EXIF data and dimensions for a stored image.
// Best effort; an image without readable metadata is still a valid upload.
func (s *Service) captureMetadata(img *models.Image) {
	fullPath, err := s.blobs.FullPath(img.Filename)
	if err != nil {
		return
	}
	meta, err := utils.GetImageMetadata(fullPath)
	if err != nil {
		log.Printf("gallery: metadata extraction failed for %s: %v", img.Filename, err)
		return
	}
	if err := s.images.UpdateMetadata(img.ID, meta); err != nil {
		log.Printf("gallery: failed to store metadata for %s: %v", img.Filename, err)
	}
}

// Show opens the named blob for streaming. No ownership check: any caller
// who knows a filename may view it.
func (s *Service) Show(filename string) (*os.File, os.FileInfo, error) {
	file, info, err := s.blobs.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("blob %s: %w", filename, ErrNotFound)
		}
		return nil, nil, err
	}
	return file, info, nil
}

// BlobPath resolves a stored filename to its path on disk, for handlers
// that need to re-read the original bytes.
func (s *Service) BlobPath(filename string) (string, error) {
	return s.blobs.FullPath(filename)
}

// Delete removes the image row and its face rows in one transaction, then
// the blob and any cached detection document. A blob that is already gone
// does not fail the operation.
func (s *Service) Delete(id uint, caller *models.User) error {
	entry, err := s.Retrieve(id, caller, true)
	if err != nil {
		return err
	}

	if err := s.images.DeleteWithFaces(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("image %d: %w", id, ErrNotFound)
		}
		return err
	}

	if err := s.blobs.Delete(entry.Filename); err != nil {
		log.Printf("gallery: failed to delete blob %s for image %d: %v", entry.Filename, id, err)
	}
	if err := s.blobs.Delete(detectionCacheName(id)); err != nil {
		log.Printf("gallery: failed to delete detection cache for image %d: %v", id, err)
	}
	return nil
}

func validRectangle(r *Rectangle) error {
	if r.X1 < 0 || r.Y1 < 0 {
		return &ValidationError{Msg: "rectangle coordinates must be non-negative"}
	}
	if r.X2 < r.X1 || r.Y2 < r.Y1 {
		return &ValidationError{Msg: "rectangle corners are reversed"}
	}
	return nil
}

// Edit updates the caption and optionally appends one manually annotated
// rectangle. Rectangles are additive through this path; existing ones are
// never replaced. Returns the image's full rectangle set.
func (s *Service) Edit(id uint, caller *models.User, caption string, rect *Rectangle) ([]models.Face, error) {
	if _, err := s.Retrieve(id, caller, true); err != nil {
		return nil, err
	}

	if strings.TrimSpace(caption) == "" {
		return nil, &ValidationError{Msg: "description needed"}
	}
	if rect != nil {
		if err := validRectangle(rect); err != nil {
			return nil, err
		}
	}

	if err := s.images.UpdateAbout(id, caption); err != nil {
		return nil, err
	}
	if rect != nil {
		face := &models.Face{ImageID: id, X1: rect.X1, Y1: rect.Y1, X2: rect.X2, Y2: rect.Y2}
		if err := s.faces.Create(face); err != nil {
			return nil, err
		}
	}

	return s.faces.ListByImageID(id)
}

func detectionCacheName(imageID uint) string {
	return fmt.Sprintf("faces_image%d.json", imageID)
}

// DetectFaces sends the stored blob to the cloud detection service,
// converts each returned (left, top, width, height) record into corner
// coordinates and inserts the whole set in one transaction. An upstream
// failure commits nothing locally. The raw response is cached in the blob
// store, keyed by image id, only when faces were found.
func (s *Service) DetectFaces(ctx context.Context, id uint, caller *models.User) (*DetectionOutcome, error) {
	entry, err := s.Retrieve(id, caller, true)
	if err != nil {
		return nil, err
	}

	blob, _, err := s.Show(entry.Filename)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	result, err := s.detector.Detect(ctx, blob)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	if len(result.Faces) == 0 {
		return &DetectionOutcome{Faces: []models.Face{}, Message: "no faces detected"}, nil
	}

	faces := make([]models.Face, 0, len(result.Faces))
	for _, record := range result.Faces {
		rect := record.FaceRectangle
		if rect.Width < 0 || rect.Height < 0 {
			return nil, &UpstreamError{Err: fmt.Errorf("malformed rectangle %+v for face %s", rect, record.FaceID)}
		}
		faces = append(faces, models.Face{
			ImageID: id,
			X1:      rect.Left,
			Y1:      rect.Top,
			X2:      rect.Left + rect.Width,
			Y2:      rect.Top + rect.Height,
		})
	}

	if err := s.faces.CreateBatch(faces); err != nil {
		return nil, err
	}

	cacheName := detectionCacheName(id)
	if err := s.blobs.SaveJSON(cacheName, result.Raw); err != nil {
		log.Printf("gallery: failed to cache detection response for image %d: %v", id, err)
		cacheName = ""
	}

	return &DetectionOutcome{
		Faces:         faces,
		CacheDocument: cacheName,
		Message:       "face rectangles added",
	}, nil
}
