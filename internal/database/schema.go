package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tracker_run (
		id             TEXT PRIMARY KEY,
		base_url       TEXT NOT NULL,
		currency       TEXT NOT NULL DEFAULT '',
		format         TEXT NOT NULL DEFAULT '',
		filter         JSONB NOT NULL DEFAULT '{}'::jsonb,
		product_count  INTEGER NOT NULL DEFAULT 0,
		finished_at    TIMESTAMPTZ NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tracker_product (
		run_id           TEXT NOT NULL REFERENCES tracker_run(id) ON DELETE CASCADE,
		position         INTEGER NOT NULL,
		asin             TEXT NOT NULL,
		url              TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		price            NUMERIC(12,2),
		currency         TEXT NOT NULL DEFAULT '',
		rating           NUMERIC(3,2),
		review_count     INTEGER,
		best_seller_rank INTEGER,
		brand            TEXT NOT NULL DEFAULT '',
		seller_type      TEXT NOT NULL DEFAULT '',
		prime            BOOLEAN NOT NULL DEFAULT false,
		discount         BOOLEAN NOT NULL DEFAULT false,
		country          TEXT NOT NULL DEFAULT '',
		record           JSONB NOT NULL,
		scraped_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tracker_product_asin ON tracker_product (asin, scraped_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at)`,
}
