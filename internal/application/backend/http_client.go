package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient is the Primary backend variant: a full image-generation engine
// reached over HTTP, returning filenames rooted in its own output directory.
type HTTPClient struct {
	entry      Entry
	httpClient *http.Client
}

// NewHTTPClient builds the Primary backend client.
func NewHTTPClient(entry Entry) *HTTPClient {
	return &HTTPClient{
		entry:      entry,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// OutputDir implements Client.
func (c *HTTPClient) OutputDir() string { return c.entry.OutputDir }

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

// Submit implements Client.
func (c *HTTPClient) Submit(ctx context.Context, workflow map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": workflow})
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.entry.URL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", NewTransientError(err)
	}
	defer resp.Body.Close()

	if isTransientStatus(resp.StatusCode) {
		return "", NewTransientError(fmt.Errorf("submit returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("backend rejected submission: status %d", resp.StatusCode)
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	return parsed.PromptID, nil
}

type statusResponse struct {
	Status        string   `json:"status"`
	Percent       *float64 `json:"percent,omitempty"`
	QueuePosition *int     `json:"queue_position,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Status implements Client.
func (c *HTTPClient) Status(ctx context.Context, externalID string) (StatusReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.entry.URL+"/history/"+externalID, nil)
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusReport{}, NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// A 404 after successful submission signals a reaped job: fatal,
		// not transient.
		return StatusReport{}, fmt.Errorf("job %s not found on backend: reaped", externalID)
	}
	if isTransientStatus(resp.StatusCode) {
		return StatusReport{}, NewTransientError(fmt.Errorf("status poll returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return StatusReport{}, fmt.Errorf("status poll rejected: status %d", resp.StatusCode)
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return StatusReport{}, fmt.Errorf("failed to decode status response: %w", err)
	}

	return StatusReport{
		Status:        Status(parsed.Status),
		Percent:       parsed.Percent,
		QueuePosition: parsed.QueuePosition,
		ErrorMessage:  parsed.Error,
	}, nil
}

// Cancel implements Client.
func (c *HTTPClient) Cancel(ctx context.Context, externalID string) error {
	body, _ := json.Marshal(map[string]string{"prompt_id": externalID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.entry.URL+"/interrupt", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancel is best-effort; the worker transitions to cancelled
		// regardless of backend response.
		return nil
	}
	defer resp.Body.Close()
	return nil
}

type outputResponse struct {
	Outputs []OutputDescriptor `json:"outputs"`
}

// FetchOutput implements Client.
func (c *HTTPClient) FetchOutput(ctx context.Context, externalID string) ([]OutputDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.entry.URL+"/history/"+externalID+"/outputs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch-output request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, NewTransientError(fmt.Errorf("fetch-output returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch-output rejected: status %d", resp.StatusCode)
	}

	var parsed outputResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode output response: %w", err)
	}
	return parsed.Outputs, nil
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
