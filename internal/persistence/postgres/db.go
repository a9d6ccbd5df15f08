package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens and pings a PostgreSQL connection pool.
func Connect(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stock_items (
		id          TEXT PRIMARY KEY,
		account     TEXT NOT NULL,
		text        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		benefit     TEXT NOT NULL DEFAULT '',
		template_id TEXT NOT NULL DEFAULT '',
		source      TEXT NOT NULL DEFAULT '',
		score       INT  NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		consumed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_stock_unconsumed
		ON stock_items (account, created_at) WHERE consumed_at IS NULL;

	CREATE TABLE IF NOT EXISTS post_records (
		id                 TEXT PRIMARY KEY,
		account            TEXT NOT NULL,
		text               TEXT NOT NULL,
		target             TEXT NOT NULL DEFAULT '',
		benefit            TEXT NOT NULL DEFAULT '',
		template_id        TEXT NOT NULL DEFAULT '',
		source             TEXT NOT NULL DEFAULT '',
		score              INT  NOT NULL DEFAULT 0,
		channel_post_id    TEXT NOT NULL DEFAULT '',
		posted_at          TIMESTAMPTZ NOT NULL,
		success            BOOLEAN NOT NULL,
		error              TEXT NOT NULL DEFAULT '',
		impressions        INT NOT NULL DEFAULT 0,
		likes              INT NOT NULL DEFAULT 0,
		retweets           INT NOT NULL DEFAULT 0,
		replies            INT NOT NULL DEFAULT 0,
		engagement_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_hit             BOOLEAN NOT NULL DEFAULT FALSE,
		metrics_updated_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
	);
	CREATE INDEX IF NOT EXISTS idx_post_records_account
		ON post_records (account, posted_at DESC);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
