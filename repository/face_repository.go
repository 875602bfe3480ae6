package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/imagebank/backend/models"
)

type GormFaceRepository struct {
	db *gorm.DB
}

func NewGormFaceRepository(db *gorm.DB) *GormFaceRepository {
	return &GormFaceRepository{db: db}
}

// Create adds a single rectangle, used by manual annotation.
func (r *GormFaceRepository) Create(face *models.Face) error {
	if err := r.db.Create(face).Error; err != nil {
		return fmt.Errorf("failed to create face for image %d: %w", face.ImageID, err)
	}
	return nil
}

// CreateBatch inserts all rectangles from one detection call atomically.
func (r *GormFaceRepository) CreateBatch(faces []models.Face) error {
	if len(faces) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range faces {
			if err := tx.Create(&faces[i]).Error; err != nil {
				return fmt.Errorf("failed to create face %d of %d: %w", i+1, len(faces), err)
			}
		}
		return nil
	})
}

func (r *GormFaceRepository) ListByImageID(imageID uint) ([]models.Face, error) {
	faces := []models.Face{}
	err := r.db.Where("image_id = ?", imageID).Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for image %d: %w", imageID, err)
	}
	return faces, nil
}
