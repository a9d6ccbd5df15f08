// Package notify emits best-effort events over NATS: new hits, hit
// anomalies, failed posts. Emission never blocks or fails the main control
// flow; delivery problems are logged and dropped.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subjects for downstream consumers (dashboards, chat bridges).
const (
	SubjectNewHit     = "posthunter.hit.new"
	SubjectHitAnomaly = "posthunter.hit.anomaly"
	SubjectPostFailed = "posthunter.post.failed"
)

// HitEvent announces a post crossing the hit threshold for the first time.
type HitEvent struct {
	Account        string    `json:"account"`
	PostID         string    `json:"post_id"`
	ChannelPostID  string    `json:"channel_post_id"`
	TextExcerpt    string    `json:"text_excerpt"`
	Likes          int       `json:"likes"`
	EngagementRate float64   `json:"engagement_rate"`
	At             time.Time `json:"at"`
}

// AnomalyEvent reports a hit whose raw counts regressed below the threshold.
// The hit flag itself is kept; this event is the required surfacing.
type AnomalyEvent struct {
	Account string    `json:"account"`
	PostID  string    `json:"post_id"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// PostFailedEvent reports a publish error for operator visibility.
type PostFailedEvent struct {
	Account string    `json:"account"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Notifier publishes events to NATS. A nil connection degrades gracefully to
// a no-op, so tests and minimal deployments need no broker.
type Notifier struct {
	nc *nats.Conn
}

// New wraps an existing NATS connection; nil disables emission.
func New(nc *nats.Conn) *Notifier {
	return &Notifier{nc: nc}
}

// Connect dials NATS. An empty URL returns a disabled notifier.
func Connect(url string) (*Notifier, error) {
	if url == "" {
		return New(nil), nil
	}
	nc, err := nats.Connect(url,
		nats.Name("posthunter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, err
	}
	return New(nc), nil
}

// Close drains the underlying connection.
func (n *Notifier) Close() {
	if n != nil && n.nc != nil {
		n.nc.Drain()
	}
}

func (n *Notifier) publish(subject string, event any) {
	if n == nil || n.nc == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("notify: marshal failed")
		return
	}
	if err := n.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("notify: publish failed")
	}
}

// NewHit emits a first-time hit event.
func (n *Notifier) NewHit(event HitEvent) { n.publish(SubjectNewHit, event) }

// HitAnomaly emits a hit-regression anomaly.
func (n *Notifier) HitAnomaly(event AnomalyEvent) { n.publish(SubjectHitAnomaly, event) }

// PostFailed emits a publish failure.
func (n *Notifier) PostFailed(event PostFailedEvent) { n.publish(SubjectPostFailed, event) }
