// Package patterns aggregates hit records into reusable winning patterns:
// which templates, sources, and time slots produce posts that cross the hit
// threshold.
package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/persistence"
)

// Kind labels the grouping dimension of a pattern key.
type Kind string

const (
	KindTemplate Kind = "template"
	KindSource   Kind = "source"
	KindTimeSlot Kind = "time_slot"
)

// WinningPattern is one aggregated group of hits.
type WinningPattern struct {
	Kind          Kind    `json:"kind"`
	Key           string  `json:"key"`
	Count         int     `json:"count"`
	AvgEngagement float64 `json:"avg_engagement"`
}

// TopPost is one of the best-performing hit posts, kept verbatim so the
// generation side can imitate it.
type TopPost struct {
	Text       string `json:"text"`
	Engagement int    `json:"engagement"`
	TemplateID string `json:"template_id,omitempty"`
}

// Snapshot is the full recomputed pattern set written to the knowledge
// store.
type Snapshot struct {
	ComputedAt time.Time        `json:"computed_at"`
	TotalHits  int              `json:"total_hits"`
	Patterns   []WinningPattern `json:"patterns"`
	TopPosts   []TopPost        `json:"top_posts"`
}

// Learner recomputes winning patterns from scratch on every run, so the
// aggregates can never drift from the underlying record set.
type Learner struct {
	posts persistence.PostRepo
	store knowledge.Store
}

// NewLearner builds a pattern learner. A nil store skips the write-back.
func NewLearner(posts persistence.PostRepo, store knowledge.Store) *Learner {
	return &Learner{posts: posts, store: store}
}

// Recompute reads all current hits, aggregates them by template (falling
// back to source when no template id exists), source, and 3-hour time slot,
// and persists the snapshot to the knowledge store.
func (l *Learner) Recompute(ctx context.Context) (Snapshot, error) {
	hits, err := l.posts.ListHits(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list hits: %w", err)
	}

	snap := Snapshot{
		ComputedAt: time.Now(),
		TotalHits:  len(hits),
		Patterns:   aggregate(hits),
		TopPosts:   topPosts(hits, 5),
	}

	if l.store != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			return snap, fmt.Errorf("marshal pattern snapshot: %w", err)
		}
		if err := l.store.Write(ctx, knowledge.KeyWinningPatterns, data); err != nil {
			return snap, err
		}
	}

	log.Info().Int("hits", snap.TotalHits).Int("patterns", len(snap.Patterns)).
		Msg("winning patterns recomputed")
	return snap, nil
}

type bucket struct {
	count int
	total int
}

func aggregate(hits []models.PerformanceRecord) []WinningPattern {
	groups := map[Kind]map[string]*bucket{
		KindTemplate: {},
		KindSource:   {},
		KindTimeSlot: {},
	}

	add := func(kind Kind, key string, engagement int) {
		b, ok := groups[kind][key]
		if !ok {
			b = &bucket{}
			groups[kind][key] = b
		}
		b.count++
		b.total += engagement
	}

	for _, hit := range hits {
		engagement := hit.Engagement()

		templateKey := hit.TemplateID
		if templateKey == "" {
			templateKey = sourceKey(hit)
		}
		add(KindTemplate, templateKey, engagement)
		add(KindSource, sourceKey(hit), engagement)
		add(KindTimeSlot, timeSlot(hit.PostedAt), engagement)
	}

	var out []WinningPattern
	for kind, keyed := range groups {
		for key, b := range keyed {
			out = append(out, WinningPattern{
				Kind:          kind,
				Key:           key,
				Count:         b.count,
				AvgEngagement: float64(b.total) / float64(b.count),
			})
		}
	}

	// Deterministic output: kind, then engagement descending, then key.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].AvgEngagement != out[j].AvgEngagement {
			return out[i].AvgEngagement > out[j].AvgEngagement
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func sourceKey(rec models.PerformanceRecord) string {
	if rec.Source != "" {
		return rec.Source
	}
	return "unknown"
}

// timeSlot buckets a posting time into a 3-hour window like "09:00-12:00".
func timeSlot(t time.Time) string {
	h := (t.Hour() / 3) * 3
	return fmt.Sprintf("%02d:00-%02d:00", h, h+3)
}

func topPosts(hits []models.PerformanceRecord, n int) []TopPost {
	sorted := make([]models.PerformanceRecord, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Engagement() > sorted[j].Engagement()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]TopPost, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, TopPost{
			Text:       rec.Text,
			Engagement: rec.Engagement(),
			TemplateID: rec.TemplateID,
		})
	}
	return out
}
