package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// PostRepo is the in-memory persistence.PostRepo.
type PostRepo struct {
	mu      sync.RWMutex
	records map[string]models.PerformanceRecord
}

// NewPostRepo returns an empty in-memory post repo.
func NewPostRepo() *PostRepo {
	return &PostRepo{records: make(map[string]models.PerformanceRecord)}
}

// Insert stores a dispatched post record with zero metrics.
func (r *PostRepo) Insert(ctx context.Context, rec models.PostRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = models.PerformanceRecord{PostRecord: rec}
	return nil
}

// RecentPosted returns the most recent successful records, newest first.
func (r *PostRepo) RecentPosted(ctx context.Context, account string, limit int) ([]models.PerformanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PerformanceRecord
	for _, rec := range r.records {
		if rec.Account == account && rec.Success {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateMetrics overwrites the metrics fields of an existing record.
func (r *PostRepo) UpdateMetrics(ctx context.Context, rec models.PerformanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.records[rec.ID] = rec
	return nil
}

// ListPerformance returns every record with metrics, oldest posted first.
func (r *PostRepo) ListPerformance(ctx context.Context) ([]models.PerformanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PerformanceRecord
	for _, rec := range r.records {
		if rec.Impressions > 0 {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

// ListHits returns every record currently classified as a hit.
func (r *PostRepo) ListHits(ctx context.Context) ([]models.PerformanceRecord, error) {
	recs, err := r.ListPerformance(ctx)
	if err != nil {
		return nil, err
	}
	var hits []models.PerformanceRecord
	for _, rec := range recs {
		if rec.IsHit {
			hits = append(hits, rec)
		}
	}
	return hits, nil
}
