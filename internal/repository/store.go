// Package repository defines the persistence interfaces consumed by the
// usecase layer. Implementations live under
// internal/infra/adapter/persistence.
package repository

import "context"

// Repos bundles every repository over one database handle, either
// auto-commit or a single shared transaction.
type Repos struct {
	Feeds         FeedRepository
	Storys        StoryRepository
	FeedCreations FeedCreationRepository
	UserFeeds     UserFeedRepository
	FeedURLMaps   FeedURLMapRepository
}

// Store hands out repositories and runs transactions.
//
// Harbor handlers do all their writes through InTx so that one message is
// one transaction; a handler error rolls everything back and the message
// redelivery retries from a clean slate.
type Store interface {
	// Repos returns auto-commit repositories.
	Repos() *Repos

	// InTx runs fn with repositories bound to a single transaction,
	// committing when fn returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(r *Repos) error) error
}
