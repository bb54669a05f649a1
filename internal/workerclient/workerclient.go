// Package workerclient is the gateway-side client for a worker's small
// RPC surface (spec.md §6 "HTTP (worker)"): POST /browser and
// DELETE /browser/{id}. It is a thin net/http wrapper in the same
// register as the teacher's worker-side hub client, generalized to the
// gateway->worker direction.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultTimeout bounds every worker RPC call, per spec.md §5
// ("Suspension points... worker RPC calls (a few seconds)").
const DefaultTimeout = 5 * time.Second

// deleteRetries bounds how many attempts in total DeleteBrowser makes
// before giving up and letting the caller log it as best-effort, using
// the same exponential backoff shape as the teacher's worker reconnect
// loop scaled down (200ms initial, 2s max, 2x multiplier, 20% jitter).
const deleteRetries = 3

func newDeleteBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	return b
}

// Client calls a single worker's RPC surface over plain HTTP.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: DefaultTimeout}}
}

// NewBrowserResponse is the worker's response to POST /browser.
type NewBrowserResponse struct {
	BrowserID string `json:"browserId"`
	Port      int    `json:"port"`
}

// NewBrowser calls POST http://<workerHost>/browser {session_id}.
func (c *Client) NewBrowser(ctx context.Context, workerHost, sessionID string) (NewBrowserResponse, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return NewBrowserResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/browser", workerHost)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewBrowserResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewBrowserResponse{}, fmt.Errorf("call worker %s: %w", workerHost, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return NewBrowserResponse{}, fmt.Errorf("worker %s returned status %d", workerHost, resp.StatusCode)
	}

	var out NewBrowserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return NewBrowserResponse{}, fmt.Errorf("decode worker response: %w", err)
	}
	return out, nil
}

// DeleteBrowser calls DELETE http://<workerHost>/browser/{sessionId},
// retrying transient failures a few times before giving up. Per
// spec.md §4.3 step 2 the call overall remains best-effort: callers log
// a final failure and proceed with the remaining close steps rather
// than aborting.
func (c *Client) DeleteBrowser(ctx context.Context, workerHost, sessionID string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.deleteBrowserOnce(ctx, workerHost, sessionID)
	}, backoff.WithBackOff(newDeleteBackoff()), backoff.WithMaxTries(deleteRetries))
	return err
}

func (c *Client) deleteBrowserOnce(ctx context.Context, workerHost, sessionID string) error {
	url := fmt.Sprintf("http://%s/browser/%s", workerHost, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call worker %s: %w", workerHost, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("worker %s returned status %d", workerHost, resp.StatusCode)
	}
	return nil
}
