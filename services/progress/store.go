package progress

import (
	"context"

	"bingewatch/models"
)

// Store is the persistence contract every history backend implements.
// Backends are plain CRUD keyed by (userID, VideoInfo.Key()); grouping,
// dedup and ordering live in Service.
type Store interface {
	// Put inserts or replaces the record with the same identity key.
	Put(ctx context.Context, userID string, video models.VideoInfo) error
	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, userID, key string) (*models.VideoInfo, error)
	List(ctx context.Context, userID string) ([]models.VideoInfo, error)
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, userID string, keys ...string) error
	Close() error
}

// UserLister is implemented by backends that can enumerate their users.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}
