package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/repository/contract"
)

type DirectoryFileRepository struct {
	path string
}

func NewDirectoryFileRepository(path string) contract.DirectoryRepository {
	return &DirectoryFileRepository{path: path}
}

func (r *DirectoryFileRepository) Load(ctx context.Context) (model.DirectoryDocument, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewDirectoryDocument(), nil
	}
	if err != nil {
		return model.DirectoryDocument{}, fmt.Errorf("read directory file: %w", err)
	}
	return decodeDocument(raw)
}

// Save writes to a temp file in the same directory and renames it over the
// old file, so a crash never leaves a half-written document.
func (r *DirectoryFileRepository) Save(ctx context.Context, doc model.DirectoryDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory folder: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace directory file: %w", err)
	}
	return nil
}

func decodeDocument(raw []byte) (model.DirectoryDocument, error) {
	doc := model.NewDirectoryDocument()
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.DirectoryDocument{}, fmt.Errorf("decode directory: %w", err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]model.UserRecord)
	}
	for id, u := range doc.Users {
		if u.ChatID == "" {
			u.ChatID = id
			doc.Users[id] = u
		}
	}
	return doc, nil
}
