package entity

import "time"

// UserFeed is one user's subscription to a feed. (UserID, FeedID) is unique.
type UserFeed struct {
	ID             int64
	UserID         int64
	FeedID         int64
	IsFromBookmark bool
	CreatedAt      time.Time
}

// FeedURLMapNotFound is the target recorded when a URL resolved to no feed.
// "#" can never be a real URL, so it is safe as a sentinel in the audit log.
const FeedURLMapNotFound = "#"

// FeedURLMap records that a requested source URL resolved to the canonical
// target URL (or to FeedURLMapNotFound). Append-only; newest row wins.
type FeedURLMap struct {
	ID        int64
	Source    string
	Target    string
	CreatedAt time.Time
}
