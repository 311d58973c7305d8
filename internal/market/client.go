// Package market is the client for the SCMM marketplace read API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public SCMM API for Rust.
const DefaultBaseURL = "https://rust.scmm.app/api"

const requestTimeout = 10 * time.Second

// ErrNotFound is returned when the API answers 404, e.g. for a creator
// profile that has not been indexed yet.
var ErrNotFound = errors.New("market: not found")

// Client talks to the SCMM API. All calls are single blocking requests
// with a short timeout; transport failures are always surfaced to the
// caller, never collapsed into an empty result.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client against the given API base URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

type itemPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// ProfileSummary is the subset of a creator profile the bot cares about.
type ProfileSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FetchRecentItems returns up to count items ordered newest first.
func (c *Client) FetchRecentItems(ctx context.Context, count int) ([]Item, error) {
	q := url.Values{}
	q.Set("sortBy", "timeCreated")
	q.Set("sortByOrder", "desc")
	q.Set("count", fmt.Sprintf("%d", count))

	var page itemPage
	if err := c.getJSON(ctx, c.baseURL+"/item?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("fetch recent items: %w", err)
	}
	return page.Items, nil
}

// FetchCreatorProfile fetches the creator's profile summary. Returns
// ErrNotFound (wrapped) when the profile is not indexed.
func (c *Client) FetchCreatorProfile(ctx context.Context, creatorID int64) (*ProfileSummary, error) {
	var profile ProfileSummary
	endpoint := fmt.Sprintf("%s/profile/%d/summary", c.baseURL, creatorID)
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, fmt.Errorf("fetch creator profile %d: %w", creatorID, err)
	}
	return &profile, nil
}

// FetchCreatorItemCount returns how many accepted items the creator has.
func (c *Client) FetchCreatorItemCount(ctx context.Context, creatorID int64) (int, error) {
	q := url.Values{}
	q.Set("creatorId", fmt.Sprintf("%d", creatorID))
	q.Set("count", "100")

	var page itemPage
	if err := c.getJSON(ctx, c.baseURL+"/item?"+q.Encode(), &page); err != nil {
		return 0, fmt.Errorf("fetch creator item count %d: %w", creatorID, err)
	}
	return page.Total, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
