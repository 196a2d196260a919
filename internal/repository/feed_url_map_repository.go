package repository

import (
	"context"

	"feedpipe/internal/domain/entity"
)

type FeedURLMapRepository interface {
	// Create appends one resolution record.
	Create(ctx context.Context, m *entity.FeedURLMap) error
	// GetTarget returns the newest recorded target for source, or "" when
	// the source was never resolved.
	GetTarget(ctx context.Context, source string) (string, error)
}
