package repository

import (
	"context"
	"time"

	"feedpipe/internal/domain/entity"
)

// FeedCreationIDURL is the minimal projection the janitor needs to re-emit
// find_feed for a stuck creation.
type FeedCreationIDURL struct {
	ID  int64
	URL string
}

type FeedCreationRepository interface {
	// Get returns (nil, nil) when the creation does not exist.
	Get(ctx context.Context, id int64) (*entity.FeedCreation, error)
	// Create inserts the creation and fills in its ID.
	Create(ctx context.Context, creation *entity.FeedCreation) error
	Save(ctx context.Context, creation *entity.FeedCreation) error
	// UpdateStatus writes only the lifecycle state; missing rows are a no-op.
	UpdateStatus(ctx context.Context, id int64, status entity.FeedStatus) error
	// DeleteTerminalOlderThan removes READY/ERROR creations created more
	// than age ago and returns how many were dropped.
	DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error)
	// QueryIDURLsByStatus lists creations stuck in status for more than age.
	QueryIDURLsByStatus(ctx context.Context, status entity.FeedStatus, age time.Duration) ([]FeedCreationIDURL, error)
	// BulkSetPending resets the given creations to PENDING before retry.
	BulkSetPending(ctx context.Context, ids []int64) error
}
