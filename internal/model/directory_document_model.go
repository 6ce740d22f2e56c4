package model

import (
	"time"

	"gorm.io/datatypes"
)

// DirectoryDocumentRow stores the whole directory document as a single jsonb row.
type DirectoryDocumentRow struct {
	ID        uint           `gorm:"primaryKey"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (DirectoryDocumentRow) TableName() string {
	return "directory_documents"
}
