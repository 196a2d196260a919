package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/repository"
)

type FeedURLMapRepo struct{ db querier }

func NewFeedURLMapRepo(db *sql.DB) repository.FeedURLMapRepository {
	return &FeedURLMapRepo{db: db}
}

func (repo *FeedURLMapRepo) Create(ctx context.Context, m *entity.FeedURLMap) error {
	const query = `
INSERT INTO feed_url_maps (source, target)
VALUES ($1, $2)
RETURNING id, dt_created`
	err := repo.db.QueryRowContext(ctx, query, m.Source, m.Target).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *FeedURLMapRepo) GetTarget(ctx context.Context, source string) (string, error) {
	const query = `
SELECT target
FROM feed_url_maps
WHERE source = $1
ORDER BY dt_created DESC, id DESC
LIMIT 1`
	var target string
	err := repo.db.QueryRowContext(ctx, query, source).Scan(&target)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetTarget: %w", err)
	}
	return target, nil
}
