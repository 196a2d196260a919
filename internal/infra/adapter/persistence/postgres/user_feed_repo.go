package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/repository"
)

const userFeedColumns = `id, user_id, feed_id, is_from_bookmark, dt_created`

type UserFeedRepo struct{ db querier }

func NewUserFeedRepo(db *sql.DB) repository.UserFeedRepository {
	return &UserFeedRepo{db: db}
}

func scanUserFeed(row interface{ Scan(dest ...any) error }) (*entity.UserFeed, error) {
	var userFeed entity.UserFeed
	err := row.Scan(
		&userFeed.ID, &userFeed.UserID, &userFeed.FeedID,
		&userFeed.IsFromBookmark, &userFeed.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &userFeed, nil
}

func (repo *UserFeedRepo) GetByUserAndFeed(ctx context.Context, userID, feedID int64) (*entity.UserFeed, error) {
	const query = `
SELECT ` + userFeedColumns + `
FROM user_feeds
WHERE user_id = $1 AND feed_id = $2
LIMIT 1`
	userFeed, err := scanUserFeed(repo.db.QueryRowContext(ctx, query, userID, feedID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByUserAndFeed: %w", err)
	}
	return userFeed, nil
}

func (repo *UserFeedRepo) Create(ctx context.Context, userFeed *entity.UserFeed) error {
	const query = `
INSERT INTO user_feeds (user_id, feed_id, is_from_bookmark)
VALUES ($1, $2, $3)
RETURNING id, dt_created`
	err := repo.db.QueryRowContext(ctx, query,
		userFeed.UserID, userFeed.FeedID, userFeed.IsFromBookmark,
	).Scan(&userFeed.ID, &userFeed.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MoveToFeed は購読を統合先フィードへ付け替える。既に統合先を購読している
// ユーザーの行は重複するので残さず削除する。
func (repo *UserFeedRepo) MoveToFeed(ctx context.Context, srcFeedID, dstFeedID int64) (int, error) {
	const moveQuery = `
UPDATE user_feeds SET feed_id = $1
WHERE feed_id = $2
  AND user_id NOT IN (SELECT user_id FROM user_feeds WHERE feed_id = $1)`
	res, err := repo.db.ExecContext(ctx, moveQuery, dstFeedID, srcFeedID)
	if err != nil {
		return 0, fmt.Errorf("MoveToFeed: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("MoveToFeed: rows affected: %w", err)
	}

	const dropQuery = `DELETE FROM user_feeds WHERE feed_id = $1`
	if _, err := repo.db.ExecContext(ctx, dropQuery, srcFeedID); err != nil {
		return 0, fmt.Errorf("MoveToFeed: drop duplicates: %w", err)
	}
	return int(moved), nil
}
