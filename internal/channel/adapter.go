// Package channel defines the per-account adapter that publishes text to an
// external platform and fetches post metrics. The wire protocol is the
// platform's concern; the core sees only this contract.
package channel

import (
	"context"
	"errors"
)

// Metrics is the raw engagement snapshot for one published post.
type Metrics struct {
	Impressions int `json:"impressions"`
	Likes       int `json:"likes"`
	Retweets    int `json:"retweets"`
	Replies     int `json:"replies"`
}

// ErrMetricsUnavailable means the platform could not serve metrics for the
// post right now. Sweeps log and skip, then retry next cycle.
var ErrMetricsUnavailable = errors.New("metrics unavailable")

// Adapter is one account's integration with its platform.
type Adapter interface {
	// Publish posts the text and returns the platform's post id.
	Publish(ctx context.Context, text string) (string, error)

	// FetchMetrics returns the current engagement counts for a post.
	FetchMetrics(ctx context.Context, channelPostID string) (Metrics, error)
}

// Registry maps channel keys from the account config to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from a channel-key -> adapter map.
func NewRegistry(adapters map[string]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Adapter returns the adapter registered under the key.
func (r *Registry) Adapter(key string) (Adapter, bool) {
	a, ok := r.adapters[key]
	return a, ok
}
