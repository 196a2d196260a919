package entity

import "time"

// Janitor thresholds for FeedCreation rows (see CleanFeedCreation).
const (
	// FeedCreationSurvival is how long terminal (READY/ERROR) rows are kept
	// before garbage collection.
	FeedCreationSurvival = 24 * time.Hour
	// FeedCreationRetryUpdating is the age at which a stuck UPDATING row is
	// reset and retried.
	FeedCreationRetryUpdating = 30 * time.Minute
	// FeedCreationRetryPending is the age at which a stuck PENDING row is
	// retried.
	FeedCreationRetryPending = 60 * time.Minute
)

// FeedCreation tracks one user request to subscribe a URL.
// Lifecycle: PENDING → UPDATING → (READY with FeedID set | ERROR).
// Message accumulates the human-readable discovery log shown to the user.
type FeedCreation struct {
	ID             int64
	UserID         int64
	URL            string
	IsFromBookmark bool
	Status         FeedStatus
	Message        string
	FeedID         *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the FeedCreation entity fields.
func (c *FeedCreation) Validate() error {
	if err := ValidateURL(c.URL); err != nil {
		return err
	}
	if c.Status != "" && !ValidStatus(c.Status) {
		return &ValidationError{Field: "status", Message: "unknown status " + string(c.Status)}
	}
	return nil
}
