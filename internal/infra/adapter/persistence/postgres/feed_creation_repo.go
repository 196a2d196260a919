package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/repository"
)

const feedCreationColumns = `id, user_id, url, is_from_bookmark, status,
       message, feed_id, dt_created, dt_updated`

type FeedCreationRepo struct{ db querier }

func NewFeedCreationRepo(db *sql.DB) repository.FeedCreationRepository {
	return &FeedCreationRepo{db: db}
}

func scanFeedCreation(row interface{ Scan(dest ...any) error }) (*entity.FeedCreation, error) {
	var creation entity.FeedCreation
	err := row.Scan(
		&creation.ID, &creation.UserID, &creation.URL,
		&creation.IsFromBookmark, &creation.Status, &creation.Message,
		&creation.FeedID, &creation.CreatedAt, &creation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &creation, nil
}

func (repo *FeedCreationRepo) Get(ctx context.Context, id int64) (*entity.FeedCreation, error) {
	const query = `
SELECT ` + feedCreationColumns + `
FROM feed_creations
WHERE id = $1
LIMIT 1`
	creation, err := scanFeedCreation(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return creation, nil
}

func (repo *FeedCreationRepo) Create(ctx context.Context, creation *entity.FeedCreation) error {
	if creation.Status == "" {
		creation.Status = entity.StatusPending
	}
	const query = `
INSERT INTO feed_creations (user_id, url, is_from_bookmark, status, message, feed_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, dt_created, dt_updated`
	err := repo.db.QueryRowContext(ctx, query,
		creation.UserID, creation.URL, creation.IsFromBookmark,
		creation.Status, creation.Message, creation.FeedID,
	).Scan(&creation.ID, &creation.CreatedAt, &creation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *FeedCreationRepo) Save(ctx context.Context, creation *entity.FeedCreation) error {
	const query = `
UPDATE feed_creations SET
       status     = $1,
       message    = $2,
       feed_id    = $3,
       dt_updated = $4
WHERE id = $5`
	res, err := repo.db.ExecContext(ctx, query,
		creation.Status, creation.Message, creation.FeedID,
		creation.UpdatedAt, creation.ID,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Save: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Save: id %d: %w", creation.ID, entity.ErrNotFound)
	}
	return nil
}

// UpdateStatus は存在しない行を黙って無視する。作成レコードは掃除で消える
// ことがあり、遅延メッセージでエラーにしたくないため。
func (repo *FeedCreationRepo) UpdateStatus(ctx context.Context, id int64, status entity.FeedStatus) error {
	const query = `
UPDATE feed_creations SET
       status     = $1,
       dt_updated = now()
WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

func (repo *FeedCreationRepo) DeleteTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	const query = `
DELETE FROM feed_creations
WHERE status IN ($1, $2) AND dt_created < $3`
	cutoff := time.Now().Add(-age)
	res, err := repo.db.ExecContext(ctx, query, entity.StatusReady, entity.StatusError, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalOlderThan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalOlderThan: rows affected: %w", err)
	}
	return rows, nil
}

func (repo *FeedCreationRepo) QueryIDURLsByStatus(ctx context.Context, status entity.FeedStatus, age time.Duration) ([]repository.FeedCreationIDURL, error) {
	const query = `
SELECT id, url
FROM feed_creations
WHERE status = $1 AND dt_created < $2
ORDER BY id ASC`
	cutoff := time.Now().Add(-age)
	rows, err := repo.db.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("QueryIDURLsByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var idURLs []repository.FeedCreationIDURL
	for rows.Next() {
		var idURL repository.FeedCreationIDURL
		if err := rows.Scan(&idURL.ID, &idURL.URL); err != nil {
			return nil, fmt.Errorf("QueryIDURLsByStatus: scan: %w", err)
		}
		idURLs = append(idURLs, idURL)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryIDURLsByStatus: rows: %w", err)
	}
	return idURLs, nil
}

func (repo *FeedCreationRepo) BulkSetPending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
UPDATE feed_creations SET
       status     = $1,
       dt_updated = now()
WHERE id = ANY($2)`
	if _, err := repo.db.ExecContext(ctx, query, entity.StatusPending, ids); err != nil {
		return fmt.Errorf("BulkSetPending: %w", err)
	}
	return nil
}
