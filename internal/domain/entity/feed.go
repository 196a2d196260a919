// Package entity defines the core domain entities and validation logic for the
// feed pipeline. It contains the fundamental business objects such as Feed,
// Story and FeedCreation, along with their validation rules and domain-specific
// errors.
package entity

import "time"

// FeedStatus is the lifecycle state shared by Feed and FeedCreation rows.
type FeedStatus string

// Lifecycle states. A FeedCreation walks PENDING → UPDATING → (READY | ERROR);
// a Feed is READY once it has been synced at least once.
const (
	StatusPending  FeedStatus = "PENDING"
	StatusUpdating FeedStatus = "UPDATING"
	StatusReady    FeedStatus = "READY"
	StatusError    FeedStatus = "ERROR"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s FeedStatus) bool {
	switch s {
	case StatusPending, StatusUpdating, StatusReady, StatusError:
		return true
	}
	return false
}

// Feed represents a subscribed RSS/Atom feed and its polling state.
// URL is unique across live feeds; when two feeds end up with the same URL
// one is merged into the other and the source feed is destroyed.
//
// CheckedAt advances every time the scheduler hands the feed to a worker;
// SyncedAt advances only when fetched content is folded back in. Both are
// monotone nondecreasing and CheckedAt >= SyncedAt always holds.
type Feed struct {
	ID                int64
	URL               string
	Title             string
	Link              string
	Author            string
	Icon              string
	Description       string
	Version           string
	Encoding          string
	ETag              string
	LastModified      string
	ContentHashBase64 string
	Status            FeedStatus
	// StoryOffset is the per-feed monotone sequence head: the offset the
	// next new story will receive.
	StoryOffset int64
	UpdatedAt   *time.Time
	CheckedAt   *time.Time
	SyncedAt    *time.Time
	CreatedAt   time.Time
}

// Validate checks the Feed entity fields.
func (f *Feed) Validate() error {
	if f.URL == "" {
		return &ValidationError{Field: "url", Message: "url is required"}
	}
	if f.Status != "" && !ValidStatus(f.Status) {
		return &ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	return nil
}

// MonthlyStoryCount maps a dense month id (see MonthID) to the number of
// stories the feed published in that month. It is maintained as a side effect
// of bulk story save and consumed by the productivity heuristic.
type MonthlyStoryCount map[int]int

// Get returns the count for a month id, zero when absent or negative.
func (m MonthlyStoryCount) Get(monthID int) int {
	if monthID < 0 {
		return 0
	}
	return m[monthID]
}
