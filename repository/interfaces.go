package repository

import (
	"time"

	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/utils"
)

// ImageListEntry is one row of the gallery listing: an image joined with
// its owner's username.
type ImageListEntry struct {
	ID        uint      `json:"id"`
	Filename  string    `json:"filename"`
	AuthorID  uint      `json:"author_id"`
	Username  string    `json:"username"`
	About     string    `json:"about"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageRepository defines the methods for image data operations
type ImageRepository interface {
	// Create inserts the image with a temporary placeholder filename,
	// renames it to its identifier-derived final name, increments the
	// author's upload count and invokes writeBlob with the final filename,
	// all within one transaction. An error from writeBlob rolls everything
	// back.
	Create(img *models.Image, ext string, writeBlob func(filename string) error) error
	GetByID(id uint) (*models.Image, error)
	GetWithAuthor(id uint) (*ImageListEntry, error)
	List(sortOrder string) ([]ImageListEntry, error)
	UpdateAbout(id uint, about string) error
	UpdateMetadata(id uint, meta *utils.Metadata) error
	// DeleteWithFaces removes the image row and all of its face rows in one
	// transaction (owned composition; the engine-level schema does not
	// cascade).
	DeleteWithFaces(id uint) error
}

// FaceRepository defines the methods for face rectangle data operations
type FaceRepository interface {
	Create(face *models.Face) error
	// CreateBatch inserts all rectangles in one transaction; a mid-batch
	// failure leaves no partial set behind.
	CreateBatch(faces []models.Face) error
	ListByImageID(imageID uint) ([]models.Face, error)
}

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	ListAll() ([]models.User, error)
	SetAdmin(id uint, isAdmin bool) error
	Delete(id uint) error
}
