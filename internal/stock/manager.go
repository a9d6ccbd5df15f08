// Package stock owns the per-account inventory of quality-approved
// candidates held in reserve between generation and posting.
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
	"github.com/miclabs/posthunter/internal/quality"
)

// Config bounds the inventory per account.
type Config struct {
	MinPerAccount int // low-stock floor; below this a refill is due
	MaxPerAccount int // append beyond this prunes the oldest unconsumed
}

// Manager is the only owner of stock items. All consumption goes through
// TryConsume, which is atomic per account.
type Manager struct {
	repo persistence.StockRepo
	loop *generate.Loop
	cfg  Config
}

// NewManager builds a stock manager over the given repo. The loop is used
// only by Refill; a nil loop disables refilling.
func NewManager(repo persistence.StockRepo, loop *generate.Loop, cfg Config) *Manager {
	return &Manager{repo: repo, loop: loop, cfg: cfg}
}

// TryConsume atomically pops the oldest unconsumed item for the account.
// Returns nil when the stock is empty; the caller falls back to generation.
func (m *Manager) TryConsume(ctx context.Context, account string) (*models.StockItem, error) {
	item, err := m.repo.Consume(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("consume stock for %s: %w", account, err)
	}
	if item != nil {
		log.Info().Str("account", account).Str("stock_id", item.ID).
			Int("score", item.Score).Msg("stock item consumed")
	}
	return item, nil
}

// Append stocks a passing candidate. Only ever called with a passing score;
// the gate decision belongs to the caller. Appending beyond the per-account
// cap prunes the oldest unconsumed overflow.
func (m *Manager) Append(ctx context.Context, account string, cand models.Candidate, score quality.Score) (models.StockItem, error) {
	item := models.StockItem{
		ID:         "stock-" + uuid.NewString(),
		Account:    account,
		Text:       cand.Text,
		Target:     cand.Target,
		Benefit:    cand.Benefit,
		TemplateID: cand.TemplateID,
		Source:     cand.Source,
		Score:      score.Total,
		CreatedAt:  time.Now(),
	}
	if err := m.repo.Append(ctx, item); err != nil {
		return models.StockItem{}, fmt.Errorf("append stock for %s: %w", account, err)
	}
	log.Info().Str("account", account).Str("stock_id", item.ID).
		Int("score", item.Score).Msg("stock item added")

	if m.cfg.MaxPerAccount > 0 {
		pruned, err := m.repo.PruneOverflow(ctx, account, m.cfg.MaxPerAccount)
		if err != nil {
			return item, fmt.Errorf("prune stock for %s: %w", account, err)
		}
		if pruned > 0 {
			log.Debug().Str("account", account).Int("pruned", pruned).
				Msg("stock overflow pruned")
		}
	}
	return item, nil
}

// Levels returns the current unconsumed count per account. Accounts with no
// items may be absent from the map.
func (m *Manager) Levels(ctx context.Context) (map[string]int, error) {
	return m.repo.CountUnconsumed(ctx)
}

// IsLow reports whether the account's unconsumed count is below the floor.
func (m *Manager) IsLow(ctx context.Context, account string) (bool, error) {
	levels, err := m.Levels(ctx)
	if err != nil {
		return false, err
	}
	return levels[account] < m.cfg.MinPerAccount, nil
}

// List returns the account's unconsumed items for preview surfaces.
func (m *Manager) List(ctx context.Context, account string) ([]models.StockItem, error) {
	return m.repo.ListUnconsumed(ctx, account)
}

// RefillResult summarizes one account's refill run. Error is set when the
// run aborted; Added and CurrentStock still reflect what happened before.
type RefillResult struct {
	Account      string `json:"account"`
	Added        int    `json:"added"`
	Failed       int    `json:"failed"`
	CurrentStock int    `json:"current_stock"`
	Error        string `json:"error,omitempty"`
}

// Refill tops the account up to the floor via the retry loop. One extra
// attempt beyond the deficit absorbs a single rejection without leaving the
// account short.
func (m *Manager) Refill(ctx context.Context, account models.Account, input generate.Input) (RefillResult, error) {
	res := RefillResult{Account: account.ID}
	if m.loop == nil {
		return res, fmt.Errorf("refill disabled: no generation loop configured")
	}

	levels, err := m.Levels(ctx)
	if err != nil {
		return res, err
	}
	needed := m.cfg.MinPerAccount - levels[account.ID]
	if needed <= 0 {
		res.CurrentStock = levels[account.ID]
		return res, nil
	}

	for i := 0; i < needed+1 && res.Added < needed; i++ {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		accepted, rejected, err := m.loop.ObtainAccepted(ctx, account, input)
		if err != nil {
			return res, err
		}
		if rejected != nil {
			log.Warn().Str("account", account.ID).Int("score", rejected.LastScore.Total).
				Msg("refill candidate rejected")
			res.Failed++
			continue
		}
		if _, err := m.Append(ctx, account.ID, accepted.Candidate, accepted.Score); err != nil {
			return res, err
		}
		res.Added++
	}

	levels, err = m.Levels(ctx)
	if err != nil {
		return res, err
	}
	res.CurrentStock = levels[account.ID]
	return res, nil
}

// RefillAll refills every account concurrently. Accounts are independent
// partitions, so their refills never contend. A failed account is reported
// in its RefillResult and does not stop the others.
func (m *Manager) RefillAll(ctx context.Context, accounts []models.Account, input generate.Input) ([]RefillResult, error) {
	results := make([]RefillResult, len(accounts))
	var wg sync.WaitGroup

	for i, account := range accounts {
		wg.Add(1)
		go func(i int, account models.Account) {
			defer wg.Done()
			res, err := m.Refill(ctx, account, input)
			if err != nil {
				log.Error().Err(err).Str("account", account.ID).Msg("refill failed")
				res.Error = err.Error()
			}
			results[i] = res
		}(i, account)
	}
	wg.Wait()
	return results, nil
}
