// Package models holds the shared record types flowing through the posting
// pipeline: candidates, stock items, post records and their measured
// performance.
package models

import "time"

// Account is one configured brand account. The set of accounts is fixed for
// the process lifetime and loaded from configuration.
type Account struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Channel string `yaml:"channel" json:"channel"` // channel adapter key
}

// Candidate is a generated post body before it has passed the quality gate.
type Candidate struct {
	Text       string `json:"text"`
	Target     string `json:"target"`
	Benefit    string `json:"benefit"`
	TemplateID string `json:"template_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// StockItem is a quality-approved candidate held in reserve for an account.
// ConsumedAt is set exactly once, atomically, when the item is handed to the
// posting orchestrator.
type StockItem struct {
	ID         string     `json:"id" db:"id"`
	Account    string     `json:"account" db:"account"`
	Text       string     `json:"text" db:"text"`
	Target     string     `json:"target" db:"target"`
	Benefit    string     `json:"benefit" db:"benefit"`
	TemplateID string     `json:"template_id,omitempty" db:"template_id"`
	Source     string     `json:"source,omitempty" db:"source"`
	Score      int        `json:"score" db:"score"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
}

// Candidate reconstructs the candidate carried by a stock item.
func (s StockItem) Candidate() Candidate {
	return Candidate{
		Text:       s.Text,
		Target:     s.Target,
		Benefit:    s.Benefit,
		TemplateID: s.TemplateID,
		Source:     s.Source,
	}
}

// PostRecord is written at dispatch time, one per publish attempt. Immutable
// after creation; metrics live on PerformanceRecord.
type PostRecord struct {
	ID            string    `json:"id" db:"id"`
	Account       string    `json:"account" db:"account"`
	Text          string    `json:"text" db:"text"`
	Target        string    `json:"target" db:"target"`
	Benefit       string    `json:"benefit" db:"benefit"`
	TemplateID    string    `json:"template_id,omitempty" db:"template_id"`
	Source        string    `json:"source,omitempty" db:"source"`
	Score         int       `json:"score" db:"score"`
	ChannelPostID string    `json:"channel_post_id,omitempty" db:"channel_post_id"`
	PostedAt      time.Time `json:"posted_at" db:"posted_at"`
	Success       bool      `json:"success" db:"success"`
	Error         string    `json:"error,omitempty" db:"error"`
}

// PerformanceRecord extends a PostRecord with observed engagement. Owned and
// mutated only by the engagement monitor. IsHit, once true, stays true; a
// later reading that would flip it back is surfaced as an anomaly instead.
type PerformanceRecord struct {
	PostRecord
	Impressions      int       `json:"impressions" db:"impressions"`
	Likes            int       `json:"likes" db:"likes"`
	Retweets         int       `json:"retweets" db:"retweets"`
	Replies          int       `json:"replies" db:"replies"`
	EngagementRate   float64   `json:"engagement_rate" db:"engagement_rate"`
	IsHit            bool      `json:"is_hit" db:"is_hit"`
	MetricsUpdatedAt time.Time `json:"metrics_updated_at" db:"metrics_updated_at"`
}

// Engagement is the raw interaction total used by pattern aggregation.
func (p PerformanceRecord) Engagement() int {
	return p.Likes + p.Retweets + p.Replies
}

// EngagementRate computes the percentage rate for the given raw counts.
// Returns 0 when impressions are zero (rate undefined).
func EngagementRate(impressions, likes, retweets, replies int) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(likes+retweets+replies) / float64(impressions) * 100
}
