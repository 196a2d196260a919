package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/repository"
)

const feedColumns = `id, url, title, link, author, icon, description, version,
       encoding, etag, last_modified, content_hash_base64, status,
       story_offset, dt_updated, dt_checked, dt_synced, dt_created`

type FeedRepo struct{ db querier }

func NewFeedRepo(db *sql.DB) repository.FeedRepository {
	return &FeedRepo{db: db}
}

func scanFeed(row interface{ Scan(dest ...any) error }) (*entity.Feed, error) {
	var feed entity.Feed
	err := row.Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Link, &feed.Author, &feed.Icon,
		&feed.Description, &feed.Version, &feed.Encoding, &feed.ETag,
		&feed.LastModified, &feed.ContentHashBase64, &feed.Status,
		&feed.StoryOffset, &feed.UpdatedAt, &feed.CheckedAt, &feed.SyncedAt,
		&feed.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	const query = `
SELECT ` + feedColumns + `
FROM feeds
WHERE id = $1
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) GetFirstByURL(ctx context.Context, url string) (*entity.Feed, error) {
	const query = `
SELECT ` + feedColumns + `
FROM feeds
WHERE url = $1
ORDER BY id ASC
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetFirstByURL: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	if feed.Status == "" {
		feed.Status = entity.StatusPending
	}
	const query = `
INSERT INTO feeds (url, title, link, author, icon, description, version,
                   encoding, etag, last_modified, content_hash_base64, status,
                   story_offset, dt_updated, dt_checked, dt_synced)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id, dt_created`
	err := repo.db.QueryRowContext(ctx, query,
		feed.URL, feed.Title, feed.Link, feed.Author, feed.Icon,
		feed.Description, feed.Version, feed.Encoding, feed.ETag,
		feed.LastModified, feed.ContentHashBase64, feed.Status,
		feed.StoryOffset, feed.UpdatedAt, feed.CheckedAt, feed.SyncedAt,
	).Scan(&feed.ID, &feed.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *FeedRepo) Update(ctx context.Context, feed *entity.Feed) error {
	const query = `
UPDATE feeds SET
       url                 = $1,
       title               = $2,
       link                = $3,
       author              = $4,
       icon                = $5,
       description         = $6,
       version             = $7,
       encoding            = $8,
       etag                = $9,
       last_modified       = $10,
       content_hash_base64 = $11,
       status              = $12,
       dt_updated          = $13,
       dt_checked          = $14,
       dt_synced           = $15
WHERE id = $16`
	res, err := repo.db.ExecContext(ctx, query,
		feed.URL, feed.Title, feed.Link, feed.Author, feed.Icon,
		feed.Description, feed.Version, feed.Encoding, feed.ETag,
		feed.LastModified, feed.ContentHashBase64, feed.Status,
		feed.UpdatedAt, feed.CheckedAt, feed.SyncedAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: feed %d: %w", feed.ID, entity.ErrNotFound)
	}
	return nil
}

func (repo *FeedRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM feeds WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: feed %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

// TakeOutdated stamps dt_checked while selecting, so a feed is handed to a
// worker at most once per outdate window even when sync never completes.
func (repo *FeedRepo) TakeOutdated(ctx context.Context, outdate time.Duration, limit int) ([]repository.OutdatedFeed, error) {
	const query = `
UPDATE feeds SET dt_checked = $1
WHERE id IN (
    SELECT id FROM feeds
    WHERE dt_checked IS NULL OR dt_checked < $2
    ORDER BY dt_checked ASC NULLS FIRST
    LIMIT $3
)
RETURNING id, url, content_hash_base64, etag, last_modified`
	now := time.Now().UTC()
	rows, err := repo.db.QueryContext(ctx, query, now, now.Add(-outdate), limit)
	if err != nil {
		return nil, fmt.Errorf("TakeOutdated: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]repository.OutdatedFeed, 0, limit)
	for rows.Next() {
		var f repository.OutdatedFeed
		if err := rows.Scan(&f.FeedID, &f.URL, &f.ContentHashBase64, &f.ETag, &f.LastModified); err != nil {
			return nil, fmt.Errorf("TakeOutdated: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (repo *FeedRepo) MonthlyStoryCount(ctx context.Context, feedID int64) (entity.MonthlyStoryCount, error) {
	const query = `
SELECT month_id, count
FROM feed_monthly_story_count
WHERE feed_id = $1`
	rows, err := repo.db.QueryContext(ctx, query, feedID)
	if err != nil {
		return nil, fmt.Errorf("MonthlyStoryCount: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(entity.MonthlyStoryCount)
	for rows.Next() {
		var monthID, count int
		if err := rows.Scan(&monthID, &count); err != nil {
			return nil, fmt.Errorf("MonthlyStoryCount: %w", err)
		}
		counts[monthID] = count
	}
	return counts, rows.Err()
}
