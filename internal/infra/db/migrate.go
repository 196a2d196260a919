package db

import "database/sql"

// MigrateUp creates the pipeline tables and indexes.
//
// story ids pack (feed_id << 32 | offset), so storys carries both the packed
// primary key and the (feed_id, offset) pair; the pair stays unique on its
// own. feed_monthly_story_count materializes the per-feed month histogram
// the productivity heuristic reads.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
    id                  BIGSERIAL PRIMARY KEY,
    url                 TEXT NOT NULL UNIQUE,
    title               TEXT NOT NULL DEFAULT '',
    link                TEXT NOT NULL DEFAULT '',
    author              TEXT NOT NULL DEFAULT '',
    icon                TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    version             TEXT NOT NULL DEFAULT '',
    encoding            TEXT NOT NULL DEFAULT '',
    etag                TEXT NOT NULL DEFAULT '',
    last_modified       TEXT NOT NULL DEFAULT '',
    content_hash_base64 TEXT NOT NULL DEFAULT '',
    status              VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    story_offset        BIGINT NOT NULL DEFAULT 0,
    dt_updated          TIMESTAMPTZ,
    dt_checked          TIMESTAMPTZ,
    dt_synced           TIMESTAMPTZ,
    dt_created          TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS storys (
    id                  BIGINT PRIMARY KEY,
    feed_id             BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    "offset"            BIGINT NOT NULL,
    unique_id           VARCHAR(200) NOT NULL,
    title               VARCHAR(200) NOT NULL DEFAULT '',
    link                TEXT NOT NULL DEFAULT '',
    author              VARCHAR(200) NOT NULL DEFAULT '',
    content             TEXT NOT NULL DEFAULT '',
    summary             TEXT NOT NULL DEFAULT '',
    content_hash_base64 TEXT NOT NULL DEFAULT '',
    dt_published        TIMESTAMPTZ,
    dt_updated          TIMESTAMPTZ,
    dt_created          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (feed_id, unique_id),
    UNIQUE (feed_id, "offset")
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feed_monthly_story_count (
    feed_id  BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    month_id INT NOT NULL,
    count    INT NOT NULL DEFAULT 0,
    PRIMARY KEY (feed_id, month_id)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feed_creations (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT NOT NULL,
    url              TEXT NOT NULL,
    is_from_bookmark BOOLEAN NOT NULL DEFAULT FALSE,
    status           VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    message          TEXT NOT NULL DEFAULT '',
    feed_id          BIGINT REFERENCES feeds(id) ON DELETE SET NULL,
    dt_created       TIMESTAMPTZ NOT NULL DEFAULT now(),
    dt_updated       TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS user_feeds (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT NOT NULL,
    feed_id          BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    is_from_bookmark BOOLEAN NOT NULL DEFAULT FALSE,
    dt_created       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, feed_id)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feed_url_maps (
    id         BIGSERIAL PRIMARY KEY,
    source     TEXT NOT NULL,
    target     TEXT NOT NULL,
    dt_created TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// check_feed が dt_checked の古い順に取り出すため
		`CREATE INDEX IF NOT EXISTS idx_feeds_dt_checked ON feeds(dt_checked ASC NULLS FIRST)`,
		`CREATE INDEX IF NOT EXISTS idx_storys_feed_id ON storys(feed_id)`,
		`CREATE INDEX IF NOT EXISTS idx_storys_dt_published ON storys(dt_published DESC)`,
		// 掃除ジョブのステータス別検索用
		`CREATE INDEX IF NOT EXISTS idx_feed_creations_status ON feed_creations(status, dt_created)`,
		`CREATE INDEX IF NOT EXISTS idx_user_feeds_feed_id ON user_feeds(feed_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_url_maps_source ON feed_url_maps(source, dt_created DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// MigrateDown drops the pipeline tables in dependency order.
// Use with caution: this deletes all data.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS feed_url_maps`,
		`DROP TABLE IF EXISTS user_feeds`,
		`DROP TABLE IF EXISTS feed_creations`,
		`DROP TABLE IF EXISTS feed_monthly_story_count`,
		`DROP TABLE IF EXISTS storys`,
		`DROP TABLE IF EXISTS feeds`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
