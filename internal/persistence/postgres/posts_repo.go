package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// postRepo implements persistence.PostRepo for PostgreSQL.
type postRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostRepo creates a PostgreSQL post repository.
func NewPostRepo(db *sqlx.DB, timeout time.Duration) persistence.PostRepo {
	return &postRepo{db: db, timeout: timeout}
}

const perfColumns = `
	id, account, text, target, benefit, template_id, source, score,
	channel_post_id, posted_at, success, error,
	impressions, likes, retweets, replies, engagement_rate, is_hit, metrics_updated_at`

func (r *postRepo) Insert(ctx context.Context, rec models.PostRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO post_records
			(id, account, text, target, benefit, template_id, source, score,
			 channel_post_id, posted_at, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Account, rec.Text, rec.Target, rec.Benefit, rec.TemplateID,
		rec.Source, rec.Score, rec.ChannelPostID, rec.PostedAt, rec.Success, rec.Error)
	if err != nil {
		return fmt.Errorf("insert post record: %w", err)
	}
	return nil
}

func (r *postRepo) RecentPosted(ctx context.Context, account string, limit int) ([]models.PerformanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []models.PerformanceRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+perfColumns+`
		FROM post_records
		WHERE account = $1 AND success
		ORDER BY posted_at DESC
		LIMIT $2`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	return recs, nil
}

func (r *postRepo) UpdateMetrics(ctx context.Context, rec models.PerformanceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE post_records
		SET impressions = $2, likes = $3, retweets = $4, replies = $5,
		    engagement_rate = $6, is_hit = $7, metrics_updated_at = $8
		WHERE id = $1`,
		rec.ID, rec.Impressions, rec.Likes, rec.Retweets, rec.Replies,
		rec.EngagementRate, rec.IsHit, rec.MetricsUpdatedAt)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *postRepo) ListPerformance(ctx context.Context) ([]models.PerformanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []models.PerformanceRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+perfColumns+`
		FROM post_records
		WHERE impressions > 0
		ORDER BY posted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	return recs, nil
}

func (r *postRepo) ListHits(ctx context.Context) ([]models.PerformanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []models.PerformanceRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+perfColumns+`
		FROM post_records
		WHERE impressions > 0 AND is_hit
		ORDER BY posted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list hits: %w", err)
	}
	return recs, nil
}
