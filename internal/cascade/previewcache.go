package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yuriguchi/testy/internal/model"
)

const previewKeyPrefix = "delete-preview:"

// QueryDesc is one cached query description: the rows of a related model
// resolved in the preview snapshot.
type QueryDesc struct {
	Kind  model.EntityKind `json:"model"`
	Table string           `json:"table"`
	IDs   []int64          `json:"ids"`
}

// cachedPreview binds query descriptions to the target row they were
// computed for.
type cachedPreview struct {
	Kind    model.EntityKind `json:"kind"`
	ID      int64            `json:"id"`
	Mode    string           `json:"mode"`
	Queries []QueryDesc      `json:"queries"`
}

// PreviewCache stores preview query descriptions under a random opaque token
// with a TTL.
type PreviewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPreviewCache creates a preview cache.
func NewPreviewCache(client *redis.Client, ttl time.Duration) *PreviewCache {
	return &PreviewCache{client: client, ttl: ttl}
}

// Put stores the preview and returns a fresh token.
func (c *PreviewCache) Put(ctx context.Context, kind model.EntityKind, id int64, mode string, queries []QueryDesc) (string, error) {
	token := uuid.New().String()
	data, err := json.Marshal(cachedPreview{Kind: kind, ID: id, Mode: mode, Queries: queries})
	if err != nil {
		return "", fmt.Errorf("failed to marshal preview: %w", err)
	}
	if err := c.client.Set(ctx, previewKeyPrefix+token, data, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to cache preview: %w", err)
	}
	return token, nil
}

// Get returns the cached queries when the token exists and is bound to the
// same target; ok is false on expiry or target mismatch.
func (c *PreviewCache) Get(ctx context.Context, token string, kind model.EntityKind, id int64, mode string) ([]QueryDesc, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, previewKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read preview cache: %w", err)
	}
	var cached cachedPreview
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, nil
	}
	if cached.Kind != kind || cached.ID != id || cached.Mode != mode {
		return nil, false, nil
	}
	return cached.Queries, true, nil
}

// Invalidate drops a consumed token.
func (c *PreviewCache) Invalidate(ctx context.Context, token string) {
	if token != "" {
		c.client.Del(ctx, previewKeyPrefix+token)
	}
}
