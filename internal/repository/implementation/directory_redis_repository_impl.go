package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

// DirectoryRedisRepository keeps the document as one JSON string value.
type DirectoryRedisRepository struct {
	rdb *redis.Client
	key string
}

func NewDirectoryRedisRepository(rdb *redis.Client, key string) contract.DirectoryRepository {
	return &DirectoryRedisRepository{rdb: rdb, key: key}
}

func (r *DirectoryRedisRepository) Load(ctx context.Context) (model.DirectoryDocument, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewDirectoryDocument(), nil
	}
	if err != nil {
		return model.DirectoryDocument{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decodeDocument(raw)
}

func (r *DirectoryRedisRepository) Save(ctx context.Context, doc model.DirectoryDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
