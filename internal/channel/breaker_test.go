package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyAdapter struct {
	err   error
	calls int
}

func (a *flakyAdapter) Publish(ctx context.Context, text string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return "ch-1", nil
}

func (a *flakyAdapter) FetchMetrics(ctx context.Context, id string) (Metrics, error) {
	a.calls++
	if a.err != nil {
		return Metrics{}, a.err
	}
	return Metrics{Likes: 1}, nil
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &flakyAdapter{}
	b := NewBreakerAdapter("x", inner)

	id, err := b.Publish(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ch-1", id)

	m, err := b.FetchMetrics(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Likes)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("channel down")}
	b := NewBreakerAdapter("x", inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Publish(ctx, "hello")
		require.Error(t, err)
	}
	callsWhenOpen := inner.calls

	_, err := b.Publish(ctx, "hello")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, callsWhenOpen, inner.calls, "open breaker must not hit the platform")
}

func TestBreakerIsolatesOperations(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("metrics endpoint down")}
	b := NewBreakerAdapter("x", inner)
	ctx := context.Background()

	// Trip the metrics side.
	for i := 0; i < 3; i++ {
		_, err := b.FetchMetrics(ctx, "ch-1")
		require.Error(t, err)
	}
	_, err := b.FetchMetrics(ctx, "ch-1")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	// Posting still goes through: the publish breaker is untouched.
	inner.err = nil
	id, err := b.Publish(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ch-1", id)
}
