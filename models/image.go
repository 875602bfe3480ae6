package models

import "time"

// Image represents an uploaded gallery image.
// The filename starts as a temporary placeholder token and is renamed to
// `image<id>.<ext>` once the database-assigned identifier is known; the
// final filename always matches a blob in the store.
type Image struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Filename  string    `json:"filename" gorm:"uniqueIndex;not null"`
	AuthorID  uint      `json:"author_id" gorm:"index;not null"`
	Author    *User     `json:"-" gorm:"foreignKey:AuthorID"`
	About     string    `json:"about" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`

	// EXIF metadata captured at upload time, best effort
	Width       *int    `json:"width,omitempty"`
	Height      *int    `json:"height,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty" gorm:"index"` // Unix timestamp
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`

	Faces []Face `json:"faces,omitempty" gorm:"foreignKey:ImageID"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}
