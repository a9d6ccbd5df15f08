package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAdapter publishes through a platform-shaped HTTP API: POST {base}/posts
// to publish, GET {base}/posts/{id}/metrics to read engagement. Credentials
// ride as a bearer token.
type HTTPAdapter struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPAdapter builds an adapter for one account's API endpoint.
func NewHTTPAdapter(baseURL, token string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	Text string `json:"text"`
}

type publishResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func (a *HTTPAdapter) Publish(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(publishRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/posts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read publish response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish failed: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var out publishResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("publish response missing post id")
	}
	return out.ID, nil
}

func (a *HTTPAdapter) FetchMetrics(ctx context.Context, channelPostID string) (Metrics, error) {
	url := fmt.Sprintf("%s/posts/%s/metrics", a.baseURL, channelPostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metrics{}, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return Metrics{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metrics{}, fmt.Errorf("%w: status %d", ErrMetricsUnavailable, resp.StatusCode)
	}

	var m Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Metrics{}, fmt.Errorf("%w: decode: %v", ErrMetricsUnavailable, err)
	}
	return m, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
