// Package orchestrator drives a posting run: consume stock, fall back to
// fresh generation, dispatch through the account's channel adapter, and
// record the outcome. Accounts are isolated; one account's failure never
// stops the others.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/channel"
	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/notify"
	"github.com/miclabs/posthunter/internal/persistence"
	"github.com/miclabs/posthunter/internal/quality"
	"github.com/miclabs/posthunter/internal/stock"
	"github.com/miclabs/posthunter/internal/telemetry"
)

// AccountRunResult is one account's outcome within a run.
type AccountRunResult struct {
	Account       string `json:"account"`
	Success       bool   `json:"success"`
	DryRun        bool   `json:"dry_run,omitempty"`
	FromStock     bool   `json:"from_stock"`
	Text          string `json:"text,omitempty"`
	Target        string `json:"target,omitempty"`
	Benefit       string `json:"benefit,omitempty"`
	Score         int    `json:"score"`
	Attempts      int    `json:"attempts,omitempty"`
	ChannelPostID string `json:"channel_post_id,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// RunResult aggregates a full run. Success means at least one account
// published (or, in a dry run, produced a candidate).
type RunResult struct {
	Success  bool               `json:"success"`
	Paused   bool               `json:"paused,omitempty"`
	Results  []AccountRunResult `json:"results"`
	Duration time.Duration      `json:"-"`
}

// Runner wires the posting pipeline together.
type Runner struct {
	accounts []models.Account
	stock    *stock.Manager
	loop     *generate.Loop
	channels *channel.Registry
	posts    persistence.PostRepo
	notifier *notify.Notifier
	metrics  *telemetry.Metrics
	paused   bool
}

// NewRunner builds a posting runner for the configured accounts.
func NewRunner(
	accounts []models.Account,
	stockMgr *stock.Manager,
	loop *generate.Loop,
	channels *channel.Registry,
	posts persistence.PostRepo,
	notifier *notify.Notifier,
	metrics *telemetry.Metrics,
	paused bool,
) *Runner {
	return &Runner{
		accounts: accounts,
		stock:    stockMgr,
		loop:     loop,
		channels: channels,
		posts:    posts,
		notifier: notifier,
		metrics:  metrics,
		paused:   paused,
	}
}

// Accounts returns the configured account set.
func (r *Runner) Accounts() []models.Account { return r.accounts }

// RunAll runs every configured account. Accounts share no mutable state
// outside the stock manager's per-account partitions, so they run
// concurrently and join before returning.
func (r *Runner) RunAll(ctx context.Context, dryRun bool) RunResult {
	start := time.Now()
	if r.paused {
		log.Info().Msg("automation paused, skipping run")
		return RunResult{Paused: true}
	}

	results := make([]AccountRunResult, len(r.accounts))
	var wg sync.WaitGroup
	for i, account := range r.accounts {
		wg.Add(1)
		go func(i int, account models.Account) {
			defer wg.Done()
			results[i] = r.RunAccount(ctx, account, dryRun)
		}(i, account)
	}
	wg.Wait()

	res := RunResult{Results: results, Duration: time.Since(start)}
	for _, ar := range results {
		if ar.Success {
			res.Success = true
		}
	}
	r.gaugeStockLevels(ctx)
	log.Info().Bool("success", res.Success).Bool("dry_run", dryRun).
		Dur("duration", res.Duration).Int("accounts", len(results)).
		Msg("posting run complete")
	return res
}

// gaugeStockLevels refreshes the per-account stock gauge after a run.
func (r *Runner) gaugeStockLevels(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	levels, err := r.stock.Levels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("stock level gauge refresh failed")
		return
	}
	for _, account := range r.accounts {
		r.metrics.StockLevel.WithLabelValues(account.ID).Set(float64(levels[account.ID]))
	}
}

// RunOne runs a single configured account by id.
func (r *Runner) RunOne(ctx context.Context, accountID string, dryRun bool) (RunResult, bool) {
	if r.paused {
		return RunResult{Paused: true}, true
	}
	for _, account := range r.accounts {
		if account.ID == accountID {
			ar := r.RunAccount(ctx, account, dryRun)
			return RunResult{Success: ar.Success, Results: []AccountRunResult{ar}}, true
		}
	}
	return RunResult{}, false
}

// RunAccount obtains a candidate (stock first, then the retry loop),
// dispatches it unless dryRun, and persists the post record. The record is
// written only after the publish call resolves, so cancellation never leaves
// a half-written outcome.
func (r *Runner) RunAccount(ctx context.Context, account models.Account, dryRun bool) AccountRunResult {
	start := time.Now()
	res := AccountRunResult{Account: account.ID, DryRun: dryRun}
	defer func() { res.DurationMS = time.Since(start).Milliseconds() }()

	cand, score, fromStock, attempts, err := r.obtainCandidate(ctx, account)
	if err != nil {
		res.Error = err.Error()
		r.countPost(account.ID, "rejected")
		return res
	}
	res.FromStock = fromStock
	res.Text = cand.Text
	res.Target = cand.Target
	res.Benefit = cand.Benefit
	res.Score = score.Total
	res.Attempts = attempts

	if dryRun {
		res.Success = true
		return res
	}

	adapter, ok := r.channels.Adapter(account.Channel)
	if !ok {
		res.Error = "no channel adapter for " + account.Channel
		r.countPost(account.ID, "error")
		return res
	}

	channelPostID, pubErr := adapter.Publish(ctx, cand.Text)

	rec := models.PostRecord{
		ID:            "post-" + uuid.NewString(),
		Account:       account.ID,
		Text:          cand.Text,
		Target:        cand.Target,
		Benefit:       cand.Benefit,
		TemplateID:    cand.TemplateID,
		Source:        cand.Source,
		Score:         score.Total,
		ChannelPostID: channelPostID,
		PostedAt:      time.Now(),
		Success:       pubErr == nil,
	}
	if pubErr != nil {
		rec.Error = pubErr.Error()
	}

	if err := r.posts.Insert(ctx, rec); err != nil {
		// The publish outcome is still reported; losing the record is a
		// separate failure worth its own log line.
		log.Error().Err(err).Str("account", account.ID).Msg("post record insert failed")
	}

	if pubErr != nil {
		// Not retried within the run: a blind retry risks a duplicate post.
		log.Error().Err(pubErr).Str("account", account.ID).Msg("publish failed")
		res.Error = pubErr.Error()
		r.countPost(account.ID, "error")
		r.notifier.PostFailed(notify.PostFailedEvent{
			Account: account.ID,
			Error:   pubErr.Error(),
			At:      time.Now(),
		})
		return res
	}

	log.Info().Str("account", account.ID).Str("channel_post_id", channelPostID).
		Bool("from_stock", fromStock).Int("score", score.Total).Msg("posted")
	res.Success = true
	res.ChannelPostID = channelPostID
	r.countPost(account.ID, "success")
	return res
}

// obtainCandidate prefers stock and falls back to the retry loop.
func (r *Runner) obtainCandidate(ctx context.Context, account models.Account) (models.Candidate, quality.Score, bool, int, error) {
	item, err := r.stock.TryConsume(ctx, account.ID)
	if err != nil {
		return models.Candidate{}, quality.Score{}, false, 0, err
	}
	if item != nil {
		return item.Candidate(), quality.Score{Total: item.Score, Passed: true}, true, 0, nil
	}

	log.Debug().Str("account", account.ID).Msg("stock empty, generating")
	accepted, rejected, err := r.loop.ObtainAccepted(ctx, account, generate.Input{})
	if err != nil {
		return models.Candidate{}, quality.Score{}, false, 0, err
	}
	if rejected != nil {
		if r.metrics != nil {
			r.metrics.GateRejects.Inc()
		}
		return models.Candidate{}, quality.Score{}, false, rejected.Attempts,
			&RejectedError{Account: account.ID, Attempts: rejected.Attempts, LastScore: rejected.LastScore}
	}
	if r.metrics != nil {
		r.metrics.GenerationAttempts.WithLabelValues(account.ID).Add(float64(accepted.Attempts))
	}
	return accepted.Candidate, accepted.Score, false, accepted.Attempts, nil
}

func (r *Runner) countPost(account, result string) {
	if r.metrics != nil {
		r.metrics.PostsTotal.WithLabelValues(account, result).Inc()
	}
}
