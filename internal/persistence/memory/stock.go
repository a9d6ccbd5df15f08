// Package memory provides in-process implementations of the persistence
// contracts. The stock repo keeps one lock per account partition so that
// concurrent runs for different accounts never block each other, while
// consume stays atomic within a partition.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// accountStock is one account's partition: its own lock and item list.
type accountStock struct {
	mu    sync.Mutex
	items []models.StockItem // append order == creation order
}

// StockRepo is the in-memory persistence.StockRepo.
type StockRepo struct {
	mu       sync.Mutex // guards the partitions map only
	accounts map[string]*accountStock
}

// NewStockRepo returns an empty in-memory stock repo.
func NewStockRepo() *StockRepo {
	return &StockRepo{accounts: make(map[string]*accountStock)}
}

func (r *StockRepo) partition(account string) *accountStock {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.accounts[account]
	if !ok {
		p = &accountStock{}
		r.accounts[account] = p
	}
	return p
}

// Append stores a new unconsumed item in its account partition.
func (r *StockRepo) Append(ctx context.Context, item models.StockItem) error {
	p := r.partition(item.Account)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
	return nil
}

// Consume pops the oldest unconsumed item under the partition lock, so at
// most one caller receives a given item.
func (r *StockRepo) Consume(ctx context.Context, account string) (*models.StockItem, error) {
	p := r.partition(account)
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.items {
		if p.items[i].ConsumedAt == nil {
			now := time.Now()
			p.items[i].ConsumedAt = &now
			item := p.items[i]
			return &item, nil
		}
	}
	return nil, nil
}

// CountUnconsumed returns the unconsumed count per account.
func (r *StockRepo) CountUnconsumed(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.accounts))
	for name := range r.accounts {
		names = append(names, name)
	}
	r.mu.Unlock()

	counts := make(map[string]int, len(names))
	for _, name := range names {
		p := r.partition(name)
		p.mu.Lock()
		n := 0
		for i := range p.items {
			if p.items[i].ConsumedAt == nil {
				n++
			}
		}
		p.mu.Unlock()
		counts[name] = n
	}
	return counts, nil
}

// ListUnconsumed returns the account's unconsumed items, oldest first.
func (r *StockRepo) ListUnconsumed(ctx context.Context, account string) ([]models.StockItem, error) {
	p := r.partition(account)
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []models.StockItem
	for i := range p.items {
		if p.items[i].ConsumedAt == nil {
			out = append(out, p.items[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PruneOverflow deletes the oldest unconsumed items beyond max.
func (r *StockRepo) PruneOverflow(ctx context.Context, account string, max int) (int, error) {
	p := r.partition(account)
	p.mu.Lock()
	defer p.mu.Unlock()

	unconsumed := 0
	for i := range p.items {
		if p.items[i].ConsumedAt == nil {
			unconsumed++
		}
	}
	excess := unconsumed - max
	if excess <= 0 {
		return 0, nil
	}

	// Items are in creation order, so the first unconsumed ones are oldest.
	pruned := 0
	kept := p.items[:0]
	for _, item := range p.items {
		if item.ConsumedAt == nil && pruned < excess {
			pruned++
			continue
		}
		kept = append(kept, item)
	}
	p.items = kept
	return pruned, nil
}

// Delete removes one item by id, searching every partition.
func (r *StockRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	partitions := make([]*accountStock, 0, len(r.accounts))
	for _, p := range r.accounts {
		partitions = append(partitions, p)
	}
	r.mu.Unlock()

	for _, p := range partitions {
		p.mu.Lock()
		for i := range p.items {
			if p.items[i].ID == id {
				p.items = append(p.items[:i], p.items[i+1:]...)
				p.mu.Unlock()
				return nil
			}
		}
		p.mu.Unlock()
	}
	return persistence.ErrNotFound
}
