// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. Consume relies on FOR UPDATE SKIP LOCKED so concurrent runs for the
// same account serialize on the row, not the table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// stockRepo implements persistence.StockRepo for PostgreSQL.
type stockRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStockRepo creates a PostgreSQL stock repository.
func NewStockRepo(db *sqlx.DB, timeout time.Duration) persistence.StockRepo {
	return &stockRepo{db: db, timeout: timeout}
}

func (r *stockRepo) Append(ctx context.Context, item models.StockItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO stock_items (id, account, text, target, benefit, template_id, source, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.Account, item.Text, item.Target, item.Benefit,
		item.TemplateID, item.Source, item.Score, item.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate stock item %s: %w", item.ID, err)
		}
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

// Consume selects the oldest unconsumed row with SKIP LOCKED and marks it
// consumed in the same transaction. At most one caller wins a given row.
func (r *stockRepo) Consume(ctx context.Context, account string) (*models.StockItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume tx: %w", err)
	}
	defer tx.Rollback()

	var item models.StockItem
	err = tx.GetContext(ctx, &item, `
		SELECT id, account, text, target, benefit, template_id, source, score, created_at, consumed_at
		FROM stock_items
		WHERE account = $1 AND consumed_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select stock item: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE stock_items SET consumed_at = $1 WHERE id = $2`, now, item.ID); err != nil {
		return nil, fmt.Errorf("mark consumed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}

	item.ConsumedAt = &now
	return &item, nil
}

func (r *stockRepo) CountUnconsumed(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT account, COUNT(*) AS n
		FROM stock_items
		WHERE consumed_at IS NULL
		GROUP BY account`)
	if err != nil {
		return nil, fmt.Errorf("count stock: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var account string
		var n int
		if err := rows.Scan(&account, &n); err != nil {
			return nil, fmt.Errorf("scan stock count: %w", err)
		}
		counts[account] = n
	}
	return counts, rows.Err()
}

func (r *stockRepo) ListUnconsumed(ctx context.Context, account string) ([]models.StockItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var items []models.StockItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, account, text, target, benefit, template_id, source, score, created_at, consumed_at
		FROM stock_items
		WHERE account = $1 AND consumed_at IS NULL
		ORDER BY created_at ASC`, account)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return items, nil
}

func (r *stockRepo) PruneOverflow(ctx context.Context, account string, max int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM stock_items
		WHERE id IN (
			SELECT id FROM stock_items
			WHERE account = $1 AND consumed_at IS NULL
			ORDER BY created_at ASC
			OFFSET 0
			LIMIT GREATEST((
				SELECT COUNT(*) FROM stock_items
				WHERE account = $1 AND consumed_at IS NULL
			) - $2, 0)
		)`, account, max)
	if err != nil {
		return 0, fmt.Errorf("prune stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune stock rows: %w", err)
	}
	return int(n), nil
}

func (r *stockRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM stock_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete stock item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
