package repository

import (
	"context"
	"time"

	"feedpipe/internal/domain/entity"
)

// OutdatedFeed is the slice of a feed the scheduler hands to sync_feed:
// identity plus the stored conditional-GET state.
type OutdatedFeed struct {
	FeedID            int64
	URL               string
	ContentHashBase64 string
	ETag              string
	LastModified      string
}

type FeedRepository interface {
	// Get returns (nil, nil) when the feed does not exist.
	Get(ctx context.Context, id int64) (*entity.Feed, error)
	// GetFirstByURL returns the oldest feed owning the URL, or (nil, nil).
	GetFirstByURL(ctx context.Context, url string) (*entity.Feed, error)
	// Create inserts the feed and fills in its ID.
	Create(ctx context.Context, feed *entity.Feed) error
	Update(ctx context.Context, feed *entity.Feed) error
	// Delete removes the feed; stories and monthly counts cascade.
	Delete(ctx context.Context, id int64) error
	// TakeOutdated selects up to limit feeds whose CheckedAt is older than
	// now-outdate (or never set) and stamps their CheckedAt to now, so a
	// feed is handed out at most once per outdate window.
	TakeOutdated(ctx context.Context, outdate time.Duration, limit int) ([]OutdatedFeed, error)
	// MonthlyStoryCount loads the per-month story counts of one feed.
	MonthlyStoryCount(ctx context.Context, feedID int64) (entity.MonthlyStoryCount, error)
}
