package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/repository"
)

const storyColumns = `id, feed_id, "offset", unique_id, title, link, author,
       content, summary, content_hash_base64, dt_published, dt_updated,
       dt_created`

type StoryRepo struct{ db querier }

func NewStoryRepo(db *sql.DB) repository.StoryRepository {
	return &StoryRepo{db: db}
}

func (repo *StoryRepo) Get(ctx context.Context, id int64) (*entity.Story, error) {
	const query = `
SELECT ` + storyColumns + `
FROM storys
WHERE id = $1
LIMIT 1`
	var story entity.Story
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&story.ID, &story.FeedID, &story.Offset, &story.UniqueID, &story.Title,
		&story.Link, &story.Author, &story.Content, &story.Summary,
		&story.ContentHashBase64, &story.PublishedAt, &story.UpdatedAt,
		&story.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &story, nil
}

// existingStory is the projection diffed against incoming stories.
type existingStory struct {
	id          int64
	offset      int64
	hash        string
	dtPublished *time.Time
}

func (repo *StoryRepo) BulkSaveByFeed(ctx context.Context, feedID int64, storys []*entity.Story) ([]*entity.Story, int, error) {
	if len(storys) == 0 {
		return nil, 0, nil
	}

	// フィード側の重複エントリは最初の1件を採用
	incoming := make([]*entity.Story, 0, len(storys))
	seen := make(map[string]struct{}, len(storys))
	uniqueIDs := make([]string, 0, len(storys))
	for _, s := range storys {
		if _, ok := seen[s.UniqueID]; ok {
			continue
		}
		seen[s.UniqueID] = struct{}{}
		incoming = append(incoming, s)
		uniqueIDs = append(uniqueIDs, s.UniqueID)
	}

	existing, err := repo.loadExisting(ctx, feedID, uniqueIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("BulkSaveByFeed: %w", err)
	}

	var newStorys []*entity.Story
	var changed []*entity.Story
	oldPublished := make(map[int64]*time.Time)
	for _, s := range incoming {
		old, ok := existing[s.UniqueID]
		if !ok {
			newStorys = append(newStorys, s)
			continue
		}
		if old.hash == s.ContentHashBase64 {
			continue
		}
		s.ID = old.id
		s.Offset = old.offset
		s.FeedID = feedID
		oldPublished[s.ID] = old.dtPublished
		changed = append(changed, s)
	}

	monthDeltas := make(map[int]int)

	if len(newStorys) > 0 {
		if err := repo.insertNew(ctx, feedID, newStorys, monthDeltas); err != nil {
			return nil, 0, fmt.Errorf("BulkSaveByFeed: %w", err)
		}
	}

	numReallocate := 0
	for _, s := range changed {
		if err := repo.updateChanged(ctx, s); err != nil {
			return nil, 0, fmt.Errorf("BulkSaveByFeed: %w", err)
		}
		oldMonth := monthIDOrNow(oldPublished[s.ID])
		newMonth := monthIDOrNow(s.PublishedAt)
		if oldMonth != newMonth {
			numReallocate++
			monthDeltas[oldMonth]--
			monthDeltas[newMonth]++
		}
	}

	if err := repo.applyMonthDeltas(ctx, feedID, monthDeltas); err != nil {
		return nil, 0, fmt.Errorf("BulkSaveByFeed: %w", err)
	}

	modified := make([]*entity.Story, 0, len(newStorys)+len(changed))
	modified = append(modified, newStorys...)
	modified = append(modified, changed...)
	return modified, numReallocate, nil
}

func (repo *StoryRepo) loadExisting(ctx context.Context, feedID int64, uniqueIDs []string) (map[string]existingStory, error) {
	const query = `
SELECT id, "offset", unique_id, content_hash_base64, dt_published
FROM storys
WHERE feed_id = $1 AND unique_id = ANY($2)`
	rows, err := repo.db.QueryContext(ctx, query, feedID, uniqueIDs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]existingStory, len(uniqueIDs))
	for rows.Next() {
		var uniqueID string
		var e existingStory
		if err := rows.Scan(&e.id, &e.offset, &uniqueID, &e.hash, &e.dtPublished); err != nil {
			return nil, err
		}
		existing[uniqueID] = e
	}
	return existing, rows.Err()
}

// insertNew allocates a contiguous offset block from the feed's sequence
// head, composes packed ids and inserts the rows.
func (repo *StoryRepo) insertNew(ctx context.Context, feedID int64, newStorys []*entity.Story, monthDeltas map[int]int) error {
	const allocQuery = `
UPDATE feeds SET story_offset = story_offset + $1
WHERE id = $2
RETURNING story_offset`
	var head int64
	if err := repo.db.QueryRowContext(ctx, allocQuery, len(newStorys), feedID).Scan(&head); err != nil {
		return fmt.Errorf("allocate offsets: %w", err)
	}
	base := head - int64(len(newStorys))

	const insertQuery = `
INSERT INTO storys (id, feed_id, "offset", unique_id, title, link, author,
                    content, summary, content_hash_base64, dt_published, dt_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for i, s := range newStorys {
		s.FeedID = feedID
		s.Offset = base + int64(i)
		s.ID = entity.StoryID(feedID, s.Offset)
		_, err := repo.db.ExecContext(ctx, insertQuery,
			s.ID, s.FeedID, s.Offset, s.UniqueID, s.Title, s.Link, s.Author,
			s.Content, s.Summary, s.ContentHashBase64, s.PublishedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert story %q: %w", s.UniqueID, err)
		}
		monthDeltas[monthIDOrNow(s.PublishedAt)]++
	}
	return nil
}

func (repo *StoryRepo) updateChanged(ctx context.Context, s *entity.Story) error {
	const query = `
UPDATE storys SET
       title               = $1,
       link                = $2,
       author              = $3,
       content             = $4,
       summary             = $5,
       content_hash_base64 = $6,
       dt_published        = $7,
       dt_updated          = $8
WHERE id = $9`
	_, err := repo.db.ExecContext(ctx, query,
		s.Title, s.Link, s.Author, s.Content, s.Summary,
		s.ContentHashBase64, s.PublishedAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update story %d: %w", s.ID, err)
	}
	return nil
}

// applyMonthDeltas upserts the month histogram, clamping at zero. Months
// are applied in sorted order to keep statement order deterministic.
func (repo *StoryRepo) applyMonthDeltas(ctx context.Context, feedID int64, monthDeltas map[int]int) error {
	if len(monthDeltas) == 0 {
		return nil
	}
	months := make([]int, 0, len(monthDeltas))
	for m, delta := range monthDeltas {
		if delta != 0 {
			months = append(months, m)
		}
	}
	sort.Ints(months)

	const query = `
INSERT INTO feed_monthly_story_count (feed_id, month_id, count)
VALUES ($1, $2, GREATEST(0, $3))
ON CONFLICT (feed_id, month_id)
DO UPDATE SET count = GREATEST(0, feed_monthly_story_count.count + $3)`
	for _, m := range months {
		if _, err := repo.db.ExecContext(ctx, query, feedID, m, monthDeltas[m]); err != nil {
			return fmt.Errorf("apply month delta %d: %w", m, err)
		}
	}
	return nil
}

func (repo *StoryRepo) UpdateContent(ctx context.Context, storyID int64, link, content, summary string) error {
	const query = `
UPDATE storys SET
       link    = $1,
       content = $2,
       summary = $3
WHERE id = $4`
	res, err := repo.db.ExecContext(ctx, query, link, content, summary, storyID)
	if err != nil {
		return fmt.Errorf("UpdateContent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateContent: story %d: %w", storyID, entity.ErrNotFound)
	}
	return nil
}

func (repo *StoryRepo) UpdateRewrittenContent(ctx context.Context, storyID int64, content string) error {
	const query = `
UPDATE storys SET content = $1
WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, content, storyID)
	if err != nil {
		return fmt.Errorf("UpdateRewrittenContent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateRewrittenContent: story %d: %w", storyID, entity.ErrNotFound)
	}
	return nil
}

// MoveToFeed carries the source feed's stories over to the target with
// fresh offsets and packed ids. Stories whose unique_id the target already
// owns stay behind and fall with the source feed's cascade delete.
func (repo *StoryRepo) MoveToFeed(ctx context.Context, srcFeedID, dstFeedID int64) (int, error) {
	const dupQuery = `
SELECT s.id
FROM storys s
WHERE s.feed_id = $1
  AND s.unique_id NOT IN (SELECT unique_id FROM storys WHERE feed_id = $2)
ORDER BY s."offset" ASC`
	rows, err := repo.db.QueryContext(ctx, dupQuery, srcFeedID, dstFeedID)
	if err != nil {
		return 0, fmt.Errorf("MoveToFeed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var moveIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("MoveToFeed: %w", err)
		}
		moveIDs = append(moveIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("MoveToFeed: %w", err)
	}
	if len(moveIDs) == 0 {
		return 0, nil
	}

	const allocQuery = `
UPDATE feeds SET story_offset = story_offset + $1
WHERE id = $2
RETURNING story_offset`
	var head int64
	if err := repo.db.QueryRowContext(ctx, allocQuery, len(moveIDs), dstFeedID).Scan(&head); err != nil {
		return 0, fmt.Errorf("MoveToFeed: allocate offsets: %w", err)
	}
	base := head - int64(len(moveIDs))

	const moveQuery = `
UPDATE storys SET id = $1, feed_id = $2, "offset" = $3
WHERE id = $4`
	for i, oldID := range moveIDs {
		offset := base + int64(i)
		newID := entity.StoryID(dstFeedID, offset)
		if _, err := repo.db.ExecContext(ctx, moveQuery, newID, dstFeedID, offset, oldID); err != nil {
			return 0, fmt.Errorf("MoveToFeed: story %d: %w", oldID, err)
		}
	}

	// 月別カウントも移動先に付け替える
	const countQuery = `
INSERT INTO feed_monthly_story_count (feed_id, month_id, count)
SELECT $1, COALESCE(EXTRACT(YEAR FROM dt_published)::int - 1970, 0) * 12
          + COALESCE(EXTRACT(MONTH FROM dt_published)::int - 1, 0) AS month_id,
       COUNT(*)
FROM storys
WHERE feed_id = $1 AND id = ANY($2)
GROUP BY month_id
ON CONFLICT (feed_id, month_id)
DO UPDATE SET count = feed_monthly_story_count.count + EXCLUDED.count`
	newIDs := make([]int64, 0, len(moveIDs))
	for i := range moveIDs {
		newIDs = append(newIDs, entity.StoryID(dstFeedID, base+int64(i)))
	}
	if _, err := repo.db.ExecContext(ctx, countQuery, dstFeedID, newIDs); err != nil {
		return 0, fmt.Errorf("MoveToFeed: month counts: %w", err)
	}

	return len(moveIDs), nil
}

func monthIDOrNow(t *time.Time) int {
	if t == nil {
		return entity.MonthIDOf(time.Now().UTC())
	}
	return entity.MonthIDOf(t.UTC())
}
