package repository

import (
	"context"

	"feedpipe/internal/domain/entity"
)

type UserFeedRepository interface {
	// GetByUserAndFeed returns (nil, nil) when no subscription exists.
	GetByUserAndFeed(ctx context.Context, userID, feedID int64) (*entity.UserFeed, error)
	// Create inserts the subscription and fills in its ID.
	Create(ctx context.Context, userFeed *entity.UserFeed) error
	// MoveToFeed repoints every subscription of srcFeedID to dstFeedID,
	// dropping subscriptions whose user already follows the target.
	MoveToFeed(ctx context.Context, srcFeedID, dstFeedID int64) (int, error)
}
