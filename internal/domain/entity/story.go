package entity

import "time"

// Story represents one entry of a feed.
// (FeedID, UniqueID) is unique; Offset is a monotone per-feed sequence and
// ID packs (FeedID, Offset) so that storage can partition stories by the
// monthly bucket of PublishedAt.
type Story struct {
	ID                int64
	FeedID            int64
	Offset            int64
	UniqueID          string
	Title             string
	Link              string
	Author            string
	Content           string
	Summary           string
	ContentHashBase64 string
	PublishedAt       *time.Time
	UpdatedAt         *time.Time
	CreatedAt         time.Time
}

// StoryID packs (feedID, offset) into the story primary key: the high 32
// bits carry the feed id and the low 32 bits the per-feed offset, so ids
// sort by (feed, offset).
func StoryID(feedID, offset int64) int64 {
	return feedID<<32 | (offset & 0xFFFFFFFF)
}

// UnpackStoryID splits a packed story id into (feedID, offset).
func UnpackStoryID(id int64) (feedID, offset int64) {
	return id >> 32, id & 0xFFFFFFFF
}

// Validate checks the Story entity fields.
func (s *Story) Validate() error {
	if s.FeedID <= 0 {
		return &ValidationError{Field: "feed_id", Message: "feed_id is required"}
	}
	if s.UniqueID == "" {
		return &ValidationError{Field: "unique_id", Message: "unique_id is required"}
	}
	return nil
}
