// Package pdca closes the loop: it correlates the gate's predicted scores
// with realized engagement, ranks target and benefit labels, and writes the
// resulting report back to the knowledge store that conditions future
// generation.
package pdca

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// CorrelationStrength classifies how well the gate's score predicts
// engagement.
type CorrelationStrength string

const (
	CorrelationStrong   CorrelationStrength = "strong"
	CorrelationModerate CorrelationStrength = "moderate"
	CorrelationWeak     CorrelationStrength = "weak"
	CorrelationNone     CorrelationStrength = "none"
)

// ScoreCorrelation compares the high- and low-scored cohorts.
type ScoreCorrelation struct {
	HighScoreAvgEngagement float64             `json:"high_score_avg_engagement"`
	LowScoreAvgEngagement  float64             `json:"low_score_avg_engagement"`
	Strength               CorrelationStrength `json:"strength"`
}

// LabelStat is the mean engagement for one target or benefit label.
type LabelStat struct {
	Label         string  `json:"label"`
	AvgEngagement float64 `json:"avg_engagement"`
	Count         int     `json:"count"`
}

// EffectivePatterns are the top-ranked labels.
type EffectivePatterns struct {
	Targets  []LabelStat `json:"targets"`
	Benefits []LabelStat `json:"benefits"`
}

// Underperforming lists labels well below the overall mean.
type Underperforming struct {
	Targets  []string `json:"targets"`
	Benefits []string `json:"benefits"`
}

// Report is the analyzer's output, written to the knowledge store with
// last-writer-wins semantics.
type Report struct {
	AnalyzedAt       time.Time         `json:"analyzed_at"`
	TotalAnalyzed    int               `json:"total_analyzed"`
	ScoreCorrelation ScoreCorrelation  `json:"score_correlation"`
	Effective        EffectivePatterns `json:"effective_patterns"`
	Underperforming  Underperforming   `json:"underperforming"`
	Recommendations  []string          `json:"recommendations"`
}

// Config holds the analyzer cutoffs.
type Config struct {
	HighScoreCutoff int     // predicted score >= is the high cohort
	LowScoreCutoff  int     // predicted score <= is the low cohort
	MinSamples      int     // per-label minimum before ranking
	UnderperformPct float64 // below this fraction of the overall mean
	MaxRecs         int     // bound on recommendations
}

// Analyzer runs the Check/Act phase. Concurrent Analyze calls serialize on
// an internal mutex; the knowledge store write is one run, last writer wins.
type Analyzer struct {
	posts persistence.PostRepo
	store knowledge.Store
	cfg   Config
	mu    sync.Mutex
}

// New builds a PDCA analyzer. A nil store skips the write-back.
func New(posts persistence.PostRepo, store knowledge.Store, cfg Config) *Analyzer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 2
	}
	if cfg.UnderperformPct <= 0 {
		cfg.UnderperformPct = 0.7
	}
	if cfg.MaxRecs <= 0 {
		cfg.MaxRecs = 5
	}
	return &Analyzer{posts: posts, store: store, cfg: cfg}
}

// Analyze reads every measured record, derives the report, and writes it to
// the knowledge store.
func (a *Analyzer) Analyze(ctx context.Context) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recs, err := a.posts.ListPerformance(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list performance: %w", err)
	}

	report := a.build(recs)

	if a.store != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return report, fmt.Errorf("marshal pdca report: %w", err)
		}
		if err := a.store.Write(ctx, knowledge.KeyPDCAReport, data); err != nil {
			return report, err
		}
	}

	log.Info().Int("analyzed", report.TotalAnalyzed).
		Str("correlation", string(report.ScoreCorrelation.Strength)).
		Int("recommendations", len(report.Recommendations)).
		Msg("pdca analysis complete")
	return report, nil
}

func (a *Analyzer) build(recs []models.PerformanceRecord) Report {
	report := Report{AnalyzedAt: time.Now(), TotalAnalyzed: len(recs)}
	if len(recs) == 0 {
		report.ScoreCorrelation.Strength = CorrelationNone
		report.Recommendations = []string{
			"no measured posts yet; run an engagement sweep after posting",
		}
		return report
	}

	report.ScoreCorrelation = a.correlate(recs)

	targetStats := labelStats(recs, func(r models.PerformanceRecord) string { return r.Target })
	benefitStats := labelStats(recs, func(r models.PerformanceRecord) string { return r.Benefit })

	overall := 0.0
	for _, r := range recs {
		overall += r.EngagementRate
	}
	overall /= float64(len(recs))

	report.Effective.Targets = rank(targetStats, a.cfg.MinSamples, 5)
	report.Effective.Benefits = rank(benefitStats, a.cfg.MinSamples, 5)
	report.Underperforming.Targets = below(targetStats, a.cfg.MinSamples, overall*a.cfg.UnderperformPct)
	report.Underperforming.Benefits = below(benefitStats, a.cfg.MinSamples, overall*a.cfg.UnderperformPct)
	report.Recommendations = a.recommend(report)
	return report
}

func (a *Analyzer) correlate(recs []models.PerformanceRecord) ScoreCorrelation {
	var highSum, lowSum float64
	var highN, lowN int
	for _, r := range recs {
		if r.Score >= a.cfg.HighScoreCutoff {
			highSum += r.EngagementRate
			highN++
		}
		if r.Score <= a.cfg.LowScoreCutoff {
			lowSum += r.EngagementRate
			lowN++
		}
	}

	c := ScoreCorrelation{Strength: CorrelationNone}
	if highN > 0 {
		c.HighScoreAvgEngagement = round2(highSum / float64(highN))
	}
	if lowN > 0 {
		c.LowScoreAvgEngagement = round2(lowSum / float64(lowN))
	}
	if c.HighScoreAvgEngagement > 0 && c.LowScoreAvgEngagement > 0 {
		switch ratio := c.HighScoreAvgEngagement / c.LowScoreAvgEngagement; {
		case ratio > 2:
			c.Strength = CorrelationStrong
		case ratio > 1.5:
			c.Strength = CorrelationModerate
		case ratio > 1.1:
			c.Strength = CorrelationWeak
		}
	}
	return c
}

func (a *Analyzer) recommend(report Report) []string {
	var recs []string

	if report.ScoreCorrelation.Strength == CorrelationWeak || report.ScoreCorrelation.Strength == CorrelationNone {
		recs = append(recs, "correlation between predicted score and engagement is weak; revisit gating weights")
	}
	if len(report.Effective.Targets) > 0 {
		recs = append(recs, fmt.Sprintf("target %q performs best (%.2f%% avg engagement); post to it more",
			report.Effective.Targets[0].Label, report.Effective.Targets[0].AvgEngagement))
	}
	if len(report.Effective.Benefits) > 0 {
		recs = append(recs, fmt.Sprintf("benefit angle %q performs best; lean on it",
			report.Effective.Benefits[0].Label))
	}
	if len(report.Underperforming.Targets) > 0 {
		recs = append(recs, fmt.Sprintf("rework copy for underperforming targets: %v",
			report.Underperforming.Targets))
	}
	if len(report.Underperforming.Benefits) > 0 {
		recs = append(recs, fmt.Sprintf("rework copy for underperforming benefit angles: %v",
			report.Underperforming.Benefits))
	}

	if len(recs) > a.cfg.MaxRecs {
		recs = recs[:a.cfg.MaxRecs]
	}
	return recs
}

func labelStats(recs []models.PerformanceRecord, key func(models.PerformanceRecord) string) map[string]*LabelStat {
	sums := map[string]float64{}
	stats := map[string]*LabelStat{}
	for _, r := range recs {
		label := key(r)
		if label == "" {
			label = "unknown"
		}
		s, ok := stats[label]
		if !ok {
			s = &LabelStat{Label: label}
			stats[label] = s
		}
		s.Count++
		sums[label] += r.EngagementRate
	}
	for label, s := range stats {
		s.AvgEngagement = round2(sums[label] / float64(s.Count))
	}
	return stats
}

func rank(stats map[string]*LabelStat, minSamples, limit int) []LabelStat {
	var out []LabelStat
	for _, s := range stats {
		if s.Count >= minSamples {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgEngagement != out[j].AvgEngagement {
			return out[i].AvgEngagement > out[j].AvgEngagement
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func below(stats map[string]*LabelStat, minSamples int, cutoff float64) []string {
	var out []string
	for _, s := range stats {
		if s.Count >= minSamples && s.AvgEngagement < cutoff {
			out = append(out, s.Label)
		}
	}
	sort.Strings(out)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
