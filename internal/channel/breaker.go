package channel

import (
	"context"
	"time"

	cb "github.com/sony/gobreaker"
)

// BreakerAdapter wraps an Adapter with circuit breakers so a flapping
// platform API fails fast instead of burning the posting run's budget.
// Publish and metrics get their own breaker each: a metrics endpoint outage
// must not block posting, and vice versa.
type BreakerAdapter struct {
	inner   Adapter
	publish *cb.CircuitBreaker
	metrics *cb.CircuitBreaker
}

// NewBreakerAdapter wraps the adapter with per-operation breakers.
func NewBreakerAdapter(name string, inner Adapter) *BreakerAdapter {
	return &BreakerAdapter{
		inner:   inner,
		publish: newBreaker(name + ".publish"),
		metrics: newBreaker(name + ".metrics"),
	}
}

func newBreaker(name string) *cb.CircuitBreaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return cb.NewCircuitBreaker(st)
}

func (b *BreakerAdapter) Publish(ctx context.Context, text string) (string, error) {
	out, err := b.publish.Execute(func() (any, error) {
		return b.inner.Publish(ctx, text)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *BreakerAdapter) FetchMetrics(ctx context.Context, channelPostID string) (Metrics, error) {
	out, err := b.metrics.Execute(func() (any, error) {
		return b.inner.FetchMetrics(ctx, channelPostID)
	})
	if err != nil {
		return Metrics{}, err
	}
	return out.(Metrics), nil
}
