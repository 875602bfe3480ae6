package models

// Face represents a face bounding box on an image, either annotated
// manually or returned by the cloud detection service.
// (X1,Y1) is the top-left corner, (X2,Y2) the bottom-right; X2>=X1, Y2>=Y1.
type Face struct {
	ID      uint `json:"id" gorm:"primaryKey;autoIncrement"`
	ImageID uint `json:"image_id" gorm:"index;not null"`
	X1      int  `json:"x1" gorm:"not null"`
	Y1      int  `json:"y1" gorm:"not null"`
	X2      int  `json:"x2" gorm:"not null"`
	Y2      int  `json:"y2" gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (Face) TableName() string {
	return "faces"
}
