package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledNotifierIsSafe(t *testing.T) {
	n, err := Connect("")
	require.NoError(t, err)

	// All emission paths must be no-ops without a broker.
	n.NewHit(HitEvent{Account: "liver", PostID: "p1", At: time.Now()})
	n.HitAnomaly(AnomalyEvent{Account: "liver", PostID: "p1", Detail: "regressed"})
	n.PostFailed(PostFailedEvent{Account: "liver", Error: "channel 502"})
	n.Close()
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.NewHit(HitEvent{})
	n.HitAnomaly(AnomalyEvent{})
	n.PostFailed(PostFailedEvent{})
	n.Close()
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "posthunter.hit.new", SubjectNewHit)
	assert.Equal(t, "posthunter.hit.anomaly", SubjectHitAnomaly)
	assert.Equal(t, "posthunter.post.failed", SubjectPostFailed)
}
