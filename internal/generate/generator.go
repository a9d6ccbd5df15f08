// Package generate wraps the external text generator and the bounded retry
// loop that turns raw generations into quality-approved candidates.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/miclabs/posthunter/internal/models"
)

// ErrGenerationUnavailable means the generator backend could not produce a
// candidate. Counts against the retry budget like a quality rejection.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// Input carries the knowledge the generator conditions on. Opaque to the
// retry loop; assembled by the caller from the knowledge store.
type Input struct {
	RecentPosts []string        `json:"recent_posts,omitempty"`
	Patterns    json.RawMessage `json:"patterns,omitempty"`
}

// Generator produces one fresh candidate per call. Each call is expected to
// return different text; the gate is deterministic, so re-scoring the same
// text is pointless.
type Generator interface {
	Generate(ctx context.Context, account models.Account, input Input) (models.Candidate, error)
}

// HTTPGenerator calls a completion endpoint: POST {endpoint} with the
// account and generation input, expecting a candidate back.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator builds a generator against the configured endpoint.
func NewHTTPGenerator(endpoint string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Account string `json:"account"`
	Input   Input  `json:"input"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, account models.Account, input Input) (models.Candidate, error) {
	body, err := json.Marshal(generateRequest{Account: account.ID, Input: input})
	if err != nil {
		return models.Candidate{}, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Candidate{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Candidate{}, fmt.Errorf("%w: status %d", ErrGenerationUnavailable, resp.StatusCode)
	}

	var cand models.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&cand); err != nil {
		return models.Candidate{}, fmt.Errorf("%w: decode: %v", ErrGenerationUnavailable, err)
	}
	if cand.Text == "" {
		return models.Candidate{}, fmt.Errorf("%w: empty candidate text", ErrGenerationUnavailable)
	}
	return cand, nil
}
