// Package persistence defines the storage contracts behind the stock
// manager and the posting/engagement records, plus sentinel errors shared by
// all implementations. Implementations live in the memory and postgres
// subpackages.
package persistence

import (
	"context"
	"errors"

	"github.com/miclabs/posthunter/internal/models"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// StockRepo stores pre-vetted stock items partitioned by account.
//
// Consume is the one operation with a hard mutual-exclusion requirement: it
// must atomically select and mark the oldest unconsumed item so that a given
// item is handed to at most one caller, even under concurrent invocations
// for the same account. Different accounts must not block each other.
type StockRepo interface {
	// Append stores a new unconsumed item.
	Append(ctx context.Context, item models.StockItem) error

	// Consume atomically pops the oldest unconsumed item for the account,
	// marking it consumed in the same operation. Returns nil when the
	// account's stock is empty.
	Consume(ctx context.Context, account string) (*models.StockItem, error)

	// CountUnconsumed returns the unconsumed count per account.
	CountUnconsumed(ctx context.Context) (map[string]int, error)

	// ListUnconsumed returns the unconsumed items for one account, oldest
	// first, for status/preview surfaces.
	ListUnconsumed(ctx context.Context, account string) ([]models.StockItem, error)

	// PruneOverflow deletes the oldest unconsumed items beyond max for the
	// account and reports how many were removed.
	PruneOverflow(ctx context.Context, account string, max int) (int, error)

	// Delete removes one item by id.
	Delete(ctx context.Context, id string) error
}

// PostRepo stores post records and their measured performance. A record is
// inserted at dispatch time with zero metrics; the engagement monitor is the
// only writer of the metrics fields afterwards.
type PostRepo interface {
	// Insert stores a freshly dispatched post record.
	Insert(ctx context.Context, rec models.PostRecord) error

	// RecentPosted returns the most recent successfully published records
	// for the account, newest first, capped at limit.
	RecentPosted(ctx context.Context, account string, limit int) ([]models.PerformanceRecord, error)

	// UpdateMetrics overwrites the metrics fields of the record.
	UpdateMetrics(ctx context.Context, rec models.PerformanceRecord) error

	// ListPerformance returns every record that has metrics
	// (impressions > 0).
	ListPerformance(ctx context.Context) ([]models.PerformanceRecord, error)

	// ListHits returns every record currently classified as a hit.
	ListHits(ctx context.Context) ([]models.PerformanceRecord, error)
}
