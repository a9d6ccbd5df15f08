package generate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/quality"
)

// Gate is the scoring dependency of the retry loop.
type Gate interface {
	Check(text string) quality.Score
}

// Accepted is a candidate that passed the gate, with the score it passed on.
type Accepted struct {
	Candidate models.Candidate
	Score     quality.Score
	Attempts  int
}

// Rejected reports an exhausted retry budget. LastScore carries the final
// attempt's score for diagnostics; LastErr is set when the final attempt
// failed before scoring.
type Rejected struct {
	Attempts  int
	LastScore quality.Score
	LastErr   error
}

// LoopConfig bounds the retry loop. Explicit configuration, not inline
// counters, so it is independently tunable and testable.
type LoopConfig struct {
	MaxAttempts  int
	AttemptDelay time.Duration
	RatePerMin   int // generator call budget; <= 0 disables limiting
}

// Loop repeatedly generates and gates until a candidate passes or the
// attempt budget runs out. Attempts are strictly sequential: each one costs
// an external generation call, so nothing is speculatively parallelized.
type Loop struct {
	generator Generator
	gate      Gate
	cfg       LoopConfig
	limiter   *rate.Limiter
}

// NewLoop builds a retry loop around the generator and gate.
func NewLoop(generator Generator, gate Gate, cfg LoopConfig) *Loop {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin)
	}
	return &Loop{generator: generator, gate: gate, cfg: cfg, limiter: limiter}
}

// ObtainAccepted runs the generate-then-gate cycle. On success it returns
// immediately with the passing candidate. After MaxAttempts failures it
// returns a Rejected carrying the last score.
func (l *Loop) ObtainAccepted(ctx context.Context, account models.Account, input Input) (*Accepted, *Rejected, error) {
	var last Rejected

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && l.cfg.AttemptDelay > 0 {
			select {
			case <-time.After(l.cfg.AttemptDelay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return nil, nil, err
			}
		}

		cand, err := l.generator.Generate(ctx, account, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			log.Warn().Err(err).Str("account", account.ID).Int("attempt", attempt).
				Msg("generation failed")
			last = Rejected{Attempts: attempt, LastErr: err}
			continue
		}

		score := l.gate.Check(cand.Text)
		if score.Passed {
			log.Debug().Str("account", account.ID).Int("attempt", attempt).
				Int("score", score.Total).Msg("candidate accepted")
			return &Accepted{Candidate: cand, Score: score, Attempts: attempt}, nil, nil
		}

		log.Debug().Str("account", account.ID).Int("attempt", attempt).
			Int("score", score.Total).Strs("issues", score.Issues).
			Msg("candidate rejected by gate")
		last = Rejected{Attempts: attempt, LastScore: score}
	}

	last.Attempts = l.cfg.MaxAttempts
	return nil, &last, nil
}
