package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/repository/contract"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const directoryRowID = 1

type DirectoryGormRepository struct {
	db *gorm.DB
}

func NewDirectoryGormRepository(db *gorm.DB) contract.DirectoryRepository {
	return &DirectoryGormRepository{db: db}
}

func (r *DirectoryGormRepository) Load(ctx context.Context) (model.DirectoryDocument, error) {
	var row model.DirectoryDocumentRow
	err := r.db.WithContext(ctx).First(&row, directoryRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NewDirectoryDocument(), nil
	}
	if err != nil {
		return model.DirectoryDocument{}, fmt.Errorf("load directory row: %w", err)
	}
	return decodeDocument(row.Document)
}

func (r *DirectoryGormRepository) Save(ctx context.Context, doc model.DirectoryDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	row := model.DirectoryDocumentRow{ID: directoryRowID, Document: datatypes.JSON(raw)}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save directory row: %w", err)
	}
	return nil
}
