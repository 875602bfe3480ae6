package repository

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imagebank/backend/database"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/utils"
)

type GormImageRepository struct {
	db *gorm.DB
}

func NewGormImageRepository(db *gorm.DB) *GormImageRepository {
	return &GormImageRepository{db: db}
}

// Create inserts img with a globally unique placeholder filename, renames
// it to image<id>.<ext> once the assigned id is known, and increments the
// author's upload count. writeBlob runs last, still inside the
// transaction, so a failed blob write leaves no metadata behind.
func (r *GormImageRepository) Create(img *models.Image, ext string, writeBlob func(filename string) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		img.Filename = "tmp-" + uuid.NewString()
		if err := tx.Create(img).Error; err != nil {
			return fmt.Errorf("failed to insert image record: %w", err)
		}

		finalName := fmt.Sprintf("image%d.%s", img.ID, ext)
		if err := tx.Model(img).Update("filename", finalName).Error; err != nil {
			return fmt.Errorf("failed to rename image %d to %s: %w", img.ID, finalName, err)
		}
		img.Filename = finalName

		err := tx.Model(&models.User{}).Where("id = ?", img.AuthorID).
			Update("upload_count", gorm.Expr("upload_count + 1")).Error
		if err != nil {
			return fmt.Errorf("failed to increment upload count for user %d: %w", img.AuthorID, err)
		}

		return writeBlob(finalName)
	})
}

func (r *GormImageRepository) GetByID(id uint) (*models.Image, error) {
	var img models.Image
	if err := r.db.Preload("Faces").First(&img, id).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

var listBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func galleryQuery() sq.SelectBuilder {
	return listBuilder.Select(
		"images.id", "images.filename", "images.author_id",
		"images.about", "images.created_at", "users.username",
	).From("images").
		Join("users ON users.id = images.author_id")
}

func (r *GormImageRepository) GetWithAuthor(id uint) (*ImageListEntry, error) {
	sqlStr, args, err := galleryQuery().Where(sq.Eq{"images.id": id}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query for image %d: %w", id, err)
	}

	var entry ImageListEntry
	result := r.db.Raw(sqlStr, args...).Scan(&entry)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &entry, nil
}

func (r *GormImageRepository) List(sortOrder string) ([]ImageListEntry, error) {
	qb := galleryQuery()
	switch sortOrder {
	case database.SortCreatedAsc:
		qb = qb.OrderBy("images.created_at ASC", "images.id ASC")
	case database.SortFilenameNat:
		// natural ordering is applied in Go below
	default:
		qb = qb.OrderBy("images.created_at DESC", "images.id DESC")
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build gallery listing query: %w", err)
	}

	entries := []ImageListEntry{}
	if err := r.db.Raw(sqlStr, args...).Scan(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	if sortOrder == database.SortFilenameNat {
		sort.SliceStable(entries, func(i, j int) bool {
			return natsort.Compare(entries[i].Filename, entries[j].Filename)
		})
	}
	return entries, nil
}

func (r *GormImageRepository) UpdateAbout(id uint, about string) error {
	result := r.db.Model(&models.Image{}).Where("id = ?", id).Update("about", about)
	if result.Error != nil {
		return fmt.Errorf("failed to update caption for image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormImageRepository) UpdateMetadata(id uint, meta *utils.Metadata) error {
	updates := map[string]interface{}{
		"width":        meta.Width,
		"height":       meta.Height,
		"taken_at":     meta.TakenAt,
		"camera_make":  meta.CameraMake,
		"camera_model": meta.CameraModel,
	}
	err := r.db.Model(&models.Image{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update metadata for image %d: %w", id, err)
	}
	return nil
}

func (r *GormImageRepository) DeleteWithFaces(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.Face{}).Error; err != nil {
			return fmt.Errorf("failed to delete faces for image %d: %w", id, err)
		}
		result := tx.Delete(&models.Image{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete image %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
