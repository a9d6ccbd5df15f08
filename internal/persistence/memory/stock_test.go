package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

func stockItem(account, id string, createdAt time.Time) models.StockItem {
	return models.StockItem{
		ID:        id,
		Account:   account,
		Text:      "text-" + id,
		Score:     8,
		CreatedAt: createdAt,
	}
}

func TestConsumeOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	for i := 0; i < 3; i++ {
		item := stockItem("liver", fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Append(ctx, item))
	}

	for i := 0; i < 3; i++ {
		got, err := repo.Consume(ctx, "liver")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, fmt.Sprintf("s%d", i), got.ID, "consume order must be append order")
		require.NotNil(t, got.ConsumedAt)
	}

	got, err := repo.Consume(ctx, "liver")
	require.NoError(t, err)
	assert.Nil(t, got, "empty stock returns nil, not an error")
}

func TestConsumeAtMostOnceUnderContention(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	const items = 5
	const consumers = 40
	for i := 0; i < items; i++ {
		require.NoError(t, repo.Append(ctx, stockItem("liver", fmt.Sprintf("s%d", i), base)))
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.Consume(ctx, "liver")
			if !assert.NoError(t, err) || got == nil {
				return
			}
			mu.Lock()
			seen[got.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, items, "every item consumed exactly once")
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s consumed %d times", id, n)
	}
}

func TestConsumeIsolatedPerAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	require.NoError(t, repo.Append(ctx, stockItem("liver", "a1", base)))
	require.NoError(t, repo.Append(ctx, stockItem("chatre1", "b1", base)))

	got, err := repo.Consume(ctx, "liver")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.ID)

	counts, err := repo.CountUnconsumed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["liver"])
	assert.Equal(t, 1, counts["chatre1"])
}

func TestListUnconsumedExcludesConsumed(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	require.NoError(t, repo.Append(ctx, stockItem("liver", "s0", base)))
	require.NoError(t, repo.Append(ctx, stockItem("liver", "s1", base.Add(time.Minute))))

	_, err := repo.Consume(ctx, "liver")
	require.NoError(t, err)

	items, err := repo.ListUnconsumed(ctx, "liver")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "s1", items[0].ID)
}

func TestPruneOverflowDropsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.Append(ctx, stockItem("liver", fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	pruned, err := repo.PruneOverflow(ctx, "liver", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	items, err := repo.ListUnconsumed(ctx, "liver")
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, "s2", items[0].ID, "oldest overflow pruned first")

	pruned, err = repo.PruneOverflow(ctx, "liver", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned, "prune at the cap is a no-op")
}

func TestPruneOverflowIgnoresConsumed(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, stockItem("liver", fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
	}
	// Consumed items no longer count against the cap.
	_, err := repo.Consume(ctx, "liver")
	require.NoError(t, err)

	pruned, err := repo.PruneOverflow(ctx, "liver", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo()

	require.NoError(t, repo.Append(ctx, stockItem("liver", "s0", time.Now())))
	require.NoError(t, repo.Delete(ctx, "s0"))
	assert.ErrorIs(t, repo.Delete(ctx, "s0"), persistence.ErrNotFound)
}
