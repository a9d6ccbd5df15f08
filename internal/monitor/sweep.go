// Package monitor implements the recurring engagement sweep: fetch metrics
// for recent posts, classify hits, surface anomalies, and persist the
// updated performance records.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/channel"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/notify"
	"github.com/miclabs/posthunter/internal/persistence"
	"github.com/miclabs/posthunter/internal/telemetry"
)

// Thresholds classify a post as a hit.
type Thresholds struct {
	Likes int     // likes at or above this is a hit
	Rate  float64 // engagement rate percent at or above this is a hit
}

// Config bounds one sweep.
type Config struct {
	Thresholds    Thresholds
	MaxPerAccount int
	FetchTimeout  time.Duration
}

// SweepResult summarizes one sweep invocation.
type SweepResult struct {
	Swept     int      `json:"swept"`
	Updated   int      `json:"updated"`
	NewHits   int      `json:"new_hits"`
	Skipped   int      `json:"skipped"`
	Anomalies []string `json:"anomalies,omitempty"` // post ids whose hit counts regressed
}

// Monitor owns the metrics fields of performance records; nothing else
// writes them.
type Monitor struct {
	accounts []models.Account
	channels *channel.Registry
	posts    persistence.PostRepo
	notifier *notify.Notifier
	metrics  *telemetry.Metrics
	cfg      Config
}

// New builds an engagement monitor for the configured accounts.
func New(
	accounts []models.Account,
	channels *channel.Registry,
	posts persistence.PostRepo,
	notifier *notify.Notifier,
	metrics *telemetry.Metrics,
	cfg Config,
) *Monitor {
	if cfg.MaxPerAccount <= 0 {
		cfg.MaxPerAccount = 20
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Monitor{
		accounts: accounts,
		channels: channels,
		posts:    posts,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Sweep fetches metrics for the most recent posts of every account and
// persists the reclassified records. A single item's fetch failure is logged
// and skipped; the sweep continues.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	for _, account := range m.accounts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		adapter, ok := m.channels.Adapter(account.Channel)
		if !ok {
			log.Warn().Str("account", account.ID).Str("channel", account.Channel).
				Msg("sweep: no adapter, skipping account")
			continue
		}

		recs, err := m.posts.RecentPosted(ctx, account.ID, m.cfg.MaxPerAccount)
		if err != nil {
			return res, fmt.Errorf("list posts for %s: %w", account.ID, err)
		}

		for _, rec := range recs {
			if rec.ChannelPostID == "" {
				continue
			}
			res.Swept++

			updated, newHit, anomaly, err := m.sweepOne(ctx, adapter, rec)
			if err != nil {
				log.Warn().Err(err).Str("account", account.ID).
					Str("post_id", rec.ID).Msg("sweep: metrics fetch failed, skipping")
				res.Skipped++
				continue
			}
			res.Updated++
			if newHit {
				res.NewHits++
			}
			if anomaly {
				res.Anomalies = append(res.Anomalies, updated.ID)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	log.Info().Int("swept", res.Swept).Int("updated", res.Updated).
		Int("new_hits", res.NewHits).Int("skipped", res.Skipped).
		Int("anomalies", len(res.Anomalies)).Dur("duration", time.Since(start)).
		Msg("engagement sweep complete")
	return res, nil
}

// sweepOne fetches and reclassifies a single record. The updated record is
// written only after the fetch resolves.
func (m *Monitor) sweepOne(ctx context.Context, adapter channel.Adapter, rec models.PerformanceRecord) (models.PerformanceRecord, bool, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	raw, err := adapter.FetchMetrics(fetchCtx, rec.ChannelPostID)
	if err != nil {
		return rec, false, false, err
	}

	wasHit := rec.IsHit
	rec.Impressions = raw.Impressions
	rec.Likes = raw.Likes
	rec.Retweets = raw.Retweets
	rec.Replies = raw.Replies
	rec.EngagementRate = models.EngagementRate(raw.Impressions, raw.Likes, raw.Retweets, raw.Replies)
	rec.MetricsUpdatedAt = time.Now()

	measuredHit := raw.Likes >= m.cfg.Thresholds.Likes || rec.EngagementRate >= m.cfg.Thresholds.Rate

	newHit := false
	anomaly := false
	switch {
	case measuredHit && !wasHit:
		// First crossing. The flag is final from here on.
		rec.IsHit = true
		newHit = true
	case !measuredHit && wasHit:
		// Counts regressed below threshold. Keep the flag, surface the
		// reversal instead of hiding it.
		rec.IsHit = true
		anomaly = true
	default:
		rec.IsHit = wasHit
	}

	if err := m.posts.UpdateMetrics(ctx, rec); err != nil {
		return rec, false, false, fmt.Errorf("persist metrics: %w", err)
	}

	if newHit {
		if m.metrics != nil {
			m.metrics.HitsTotal.Inc()
		}
		log.Info().Str("account", rec.Account).Str("post_id", rec.ID).
			Int("likes", rec.Likes).Float64("rate", rec.EngagementRate).
			Msg("new hit")
		m.notifier.NewHit(notify.HitEvent{
			Account:        rec.Account,
			PostID:         rec.ID,
			ChannelPostID:  rec.ChannelPostID,
			TextExcerpt:    excerpt(rec.Text, 80),
			Likes:          rec.Likes,
			EngagementRate: rec.EngagementRate,
			At:             time.Now(),
		})
	}
	if anomaly {
		if m.metrics != nil {
			m.metrics.AnomaliesTotal.Inc()
		}
		log.Warn().Str("account", rec.Account).Str("post_id", rec.ID).
			Int("likes", rec.Likes).Float64("rate", rec.EngagementRate).
			Msg("hit metrics regressed below threshold")
		m.notifier.HitAnomaly(notify.AnomalyEvent{
			Account: rec.Account,
			PostID:  rec.ID,
			Detail: fmt.Sprintf("hit regressed: likes=%d rate=%.2f below thresholds (likes>=%d, rate>=%.2f)",
				rec.Likes, rec.EngagementRate, m.cfg.Thresholds.Likes, m.cfg.Thresholds.Rate),
			At: time.Now(),
		})
	}

	return rec, newHit, anomaly, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
