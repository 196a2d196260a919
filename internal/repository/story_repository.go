package repository

import (
	"context"

	"feedpipe/internal/domain/entity"
)

type StoryRepository interface {
	// Get returns (nil, nil) when the story does not exist.
	Get(ctx context.Context, id int64) (*entity.Story, error)

	// BulkSaveByFeed upserts the given stories for one feed, keyed by
	// unique_id: new stories are inserted with freshly allocated offsets,
	// stories whose content hash changed are updated, unchanged stories
	// are skipped. Monthly story counts are maintained as a side effect.
	//
	// Returns the inserted/updated stories (ids and offsets filled in) and
	// the number of updated stories whose monthly bucket moved.
	BulkSaveByFeed(ctx context.Context, feedID int64, storys []*entity.Story) (modified []*entity.Story, numReallocate int, err error)

	// UpdateContent persists readability-extracted content for one story.
	UpdateContent(ctx context.Context, storyID int64, link, content, summary string) error

	// UpdateRewrittenContent persists story HTML after image rewriting.
	UpdateRewrittenContent(ctx context.Context, storyID int64, content string) error

	// MoveToFeed reassigns every story of srcFeedID to dstFeedID with new
	// offsets and ids, dropping stories whose unique_id the target already
	// owns, and moves the monthly counts along. Returns the number moved.
	MoveToFeed(ctx context.Context, srcFeedID, dstFeedID int64) (int, error)
}
