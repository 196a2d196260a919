// Package postgres implements the repository interfaces over database/sql
// with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"feedpipe/internal/repository"
)

// querier is the subset of *sql.DB and *sql.Tx the repositories use, so the
// same implementations serve auto-commit and transactional access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store hands out repositories and runs transactions over one pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Repos returns auto-commit repositories.
func (s *Store) Repos() *repository.Repos {
	return newRepos(s.db)
}

// InTx runs fn with repositories bound to a single transaction. fn returning
// an error rolls back; otherwise the transaction commits.
func (s *Store) InTx(ctx context.Context, fn func(r *repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InTx: begin: %w", err)
	}
	if err := fn(newRepos(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InTx: commit: %w", err)
	}
	return nil
}

func newRepos(q querier) *repository.Repos {
	return &repository.Repos{
		Feeds:         &FeedRepo{db: q},
		Storys:        &StoryRepo{db: q},
		FeedCreations: &FeedCreationRepo{db: q},
		UserFeeds:     &UserFeedRepo{db: q},
		FeedURLMaps:   &FeedURLMapRepo{db: q},
	}
}
