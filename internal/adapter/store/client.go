// Package store is the HTTP client for the storage boundary: an internal
// API owning the relational event store. The boundary's upsert is a true
// insert-or-replace keyed on event ID, which is what makes the whole
// pipeline idempotent under provider and queue retries.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
)

// Client talks to the storage boundary endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a storage boundary client. The timeout bounds both the
// dedup lookup and the upsert; a tripped upsert is a retryable job failure.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FindByID looks up a stored event. A nil event with a nil error means the
// ID has not been seen.
func (c *Client) FindByID(ctx context.Context, id string) (*domain.Event, error) {
	u := fmt.Sprintf("%s/internal/events/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("find event %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var event domain.Event
		if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", id, err)
		}
		return &event, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("find event %s: status %d: %s", id, resp.StatusCode, body)
	}
}

// Upsert forwards a canonical event to the storage boundary. Any non-2xx
// response is an error; the caller treats it as retryable.
func (c *Client) Upsert(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize event %s: %w", event.ID, err)
	}

	u := c.baseURL + "/internal/store-event"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store event %s: %w", event.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store event %s: status %d: %s", event.ID, resp.StatusCode, body)
	}
	return nil
}
