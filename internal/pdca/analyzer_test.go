package pdca

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence/memory"
)

var testConfig = Config{
	HighScoreCutoff: 12,
	LowScoreCutoff:  8,
	MinSamples:      2,
	UnderperformPct: 0.7,
	MaxRecs:         5,
}

type measured struct {
	id      string
	score   int
	target  string
	benefit string
	rate    float64
}

func seed(t *testing.T, posts *memory.PostRepo, recs []measured) {
	t.Helper()
	ctx := context.Background()
	base := time.Now()
	for i, m := range recs {
		pr := models.PostRecord{
			ID:       m.id,
			Account:  "liver",
			Text:     "text-" + m.id,
			Target:   m.target,
			Benefit:  m.benefit,
			Score:    m.score,
			PostedAt: base.Add(time.Duration(i) * time.Minute),
			Success:  true,
		}
		require.NoError(t, posts.Insert(ctx, pr))
		require.NoError(t, posts.UpdateMetrics(ctx, models.PerformanceRecord{
			PostRecord:     pr,
			Impressions:    1000,
			Likes:          int(m.rate * 10), // rate percent out of 1000 impressions
			EngagementRate: m.rate,
		}))
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	analyzer := New(memory.NewPostRepo(), nil, testConfig)
	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalAnalyzed)
	assert.Equal(t, CorrelationNone, report.ScoreCorrelation.Strength)
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "no measured posts")
}

func TestAnalyzeCorrelationStrength(t *testing.T) {
	cases := []struct {
		name     string
		highRate float64
		lowRate  float64
		want     CorrelationStrength
	}{
		{"strong above 2x", 5.0, 2.0, CorrelationStrong},
		{"moderate above 1.5x", 4.0, 2.5, CorrelationModerate},
		{"weak above 1.1x", 3.0, 2.5, CorrelationWeak},
		{"none at parity", 2.0, 2.0, CorrelationNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			posts := memory.NewPostRepo()
			seed(t, posts, []measured{
				{id: "h1", score: 13, target: "night", benefit: "pay", rate: tc.highRate},
				{id: "h2", score: 12, target: "night", benefit: "pay", rate: tc.highRate},
				{id: "l1", score: 8, target: "day", benefit: "free", rate: tc.lowRate},
				{id: "l2", score: 7, target: "day", benefit: "free", rate: tc.lowRate},
			})

			report, err := New(posts, nil, testConfig).Analyze(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.ScoreCorrelation.Strength)
			assert.InDelta(t, tc.highRate, report.ScoreCorrelation.HighScoreAvgEngagement, 0.01)
			assert.InDelta(t, tc.lowRate, report.ScoreCorrelation.LowScoreAvgEngagement, 0.01)
		})
	}
}

func TestAnalyzeMidScoresBelongToNeitherCohort(t *testing.T) {
	posts := memory.NewPostRepo()
	seed(t, posts, []measured{
		{id: "m1", score: 10, target: "night", benefit: "pay", rate: 4.0},
		{id: "m2", score: 9, target: "night", benefit: "pay", rate: 4.0},
	})

	report, err := New(posts, nil, testConfig).Analyze(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.ScoreCorrelation.HighScoreAvgEngagement)
	assert.Zero(t, report.ScoreCorrelation.LowScoreAvgEngagement)
	assert.Equal(t, CorrelationNone, report.ScoreCorrelation.Strength)
}

func TestAnalyzeEffectiveAndUnderperforming(t *testing.T) {
	posts := memory.NewPostRepo()
	// Overall mean 3.0; cutoff 2.1. "day" (1.0) underperforms, "night" leads.
	seed(t, posts, []measured{
		{id: "n1", score: 10, target: "night", benefit: "pay", rate: 5.0},
		{id: "n2", score: 10, target: "night", benefit: "pay", rate: 5.0},
		{id: "d1", score: 10, target: "day", benefit: "free", rate: 1.0},
		{id: "d2", score: 10, target: "day", benefit: "free", rate: 1.0},
	})

	report, err := New(posts, nil, testConfig).Analyze(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, report.Effective.Targets)
	assert.Equal(t, "night", report.Effective.Targets[0].Label)
	assert.InDelta(t, 5.0, report.Effective.Targets[0].AvgEngagement, 0.01)
	assert.Equal(t, []string{"day"}, report.Underperforming.Targets)
	assert.Equal(t, []string{"free"}, report.Underperforming.Benefits)
}

func TestAnalyzeMinSamplesExcludesThinLabels(t *testing.T) {
	posts := memory.NewPostRepo()
	seed(t, posts, []measured{
		{id: "n1", score: 10, target: "night", benefit: "pay", rate: 5.0},
		{id: "n2", score: 10, target: "night", benefit: "pay", rate: 5.0},
		{id: "s1", score: 10, target: "single-sample", benefit: "pay", rate: 9.0},
	})

	report, err := New(posts, nil, testConfig).Analyze(context.Background())
	require.NoError(t, err)

	for _, stat := range report.Effective.Targets {
		assert.NotEqual(t, "single-sample", stat.Label, "one sample is not a pattern")
	}
}

func TestAnalyzeRecommendationsBounded(t *testing.T) {
	posts := memory.NewPostRepo()
	seed(t, posts, []measured{
		{id: "n1", score: 13, target: "night", benefit: "pay", rate: 3.0},
		{id: "n2", score: 13, target: "night", benefit: "pay", rate: 3.0},
		{id: "d1", score: 7, target: "day", benefit: "free", rate: 0.5},
		{id: "d2", score: 7, target: "day", benefit: "free", rate: 0.5},
	})

	cfg := testConfig
	cfg.MaxRecs = 2
	report, err := New(posts, nil, cfg).Analyze(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(report.Recommendations), 2)
}

func TestAnalyzeWritesReportToStore(t *testing.T) {
	ctx := context.Background()
	posts := memory.NewPostRepo()
	store := knowledge.NewMemoryStore()
	seed(t, posts, []measured{
		{id: "n1", score: 13, target: "night", benefit: "pay", rate: 3.0},
	})

	_, err := New(posts, store, testConfig).Analyze(ctx)
	require.NoError(t, err)

	data, err := store.Read(ctx, knowledge.KeyPDCAReport)
	require.NoError(t, err)

	var stored Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, 1, stored.TotalAnalyzed)
}

func TestAnalyzeLastWriterWins(t *testing.T) {
	ctx := context.Background()
	posts := memory.NewPostRepo()
	store := knowledge.NewMemoryStore()

	analyzer := New(posts, store, testConfig)
	seed(t, posts, []measured{{id: "n1", score: 13, target: "night", benefit: "pay", rate: 3.0}})
	_, err := analyzer.Analyze(ctx)
	require.NoError(t, err)

	seed(t, posts, []measured{{id: "n2", score: 13, target: "night", benefit: "pay", rate: 3.0}})
	_, err = analyzer.Analyze(ctx)
	require.NoError(t, err)

	data, err := store.Read(ctx, knowledge.KeyPDCAReport)
	require.NoError(t, err)
	var stored Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, 2, stored.TotalAnalyzed, "store holds the latest run only")
}

func TestAnalyzeConcurrentRunsSerialize(t *testing.T) {
	ctx := context.Background()
	posts := memory.NewPostRepo()
	store := knowledge.NewMemoryStore()
	seed(t, posts, []measured{
		{id: "n1", score: 13, target: "night", benefit: "pay", rate: 3.0},
		{id: "n2", score: 13, target: "night", benefit: "pay", rate: 3.0},
	})

	analyzer := New(posts, store, testConfig)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := analyzer.Analyze(ctx)
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}

	data, err := store.Read(ctx, knowledge.KeyPDCAReport)
	require.NoError(t, err)
	var stored Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, 2, stored.TotalAnalyzed)
}

func TestAnalyzeWeakCorrelationRecommendsGateReview(t *testing.T) {
	posts := memory.NewPostRepo()
	seed(t, posts, []measured{
		{id: "h1", score: 13, target: "night", benefit: "pay", rate: 2.6},
		{id: "l1", score: 7, target: "night", benefit: "pay", rate: 2.5},
	})

	report, err := New(posts, nil, testConfig).Analyze(context.Background())
	require.NoError(t, err)

	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "revisit gating weights") {
			found = true
		}
	}
	assert.True(t, found, "weak correlation must recommend a gate review: %v", report.Recommendations)
}
