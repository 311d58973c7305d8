package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultSteamBaseURL is the Steam community site.
const DefaultSteamBaseURL = "https://steamcommunity.com"

const steamUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// SteamOrderClient places a buy order through the Steam community market
// endpoint. Orders are best-effort: another buyer can take the listing
// between the page load and the order call.
type SteamOrderClient struct {
	baseURL string
	httpc   *http.Client
}

// NewSteamOrderClient creates a client against the given base URL (the
// public site when empty).
func NewSteamOrderClient(baseURL string) *SteamOrderClient {
	if baseURL == "" {
		baseURL = DefaultSteamBaseURL
	}
	return &SteamOrderClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: attemptTimeout},
	}
}

type buyOrderResponse struct {
	Success    int    `json:"success"`
	BuyOrderID string `json:"buy_orderid"`
	Message    string `json:"message"`
}

// Attempt loads the market listing and places a buy order for one unit at
// priceCents. A Steam-side rejection comes back as a failed Result; a
// transport problem as an error.
func (c *SteamOrderClient) Attempt(ctx context.Context, token, itemName string, priceCents int64) (Result, error) {
	listingURL := fmt.Sprintf("%s/market/listings/%d/%s", c.baseURL, rustAppID, url.PathEscape(itemName))

	// Listing page first: it validates the session cookies and the item
	// name before any money is involved.
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, listingURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build listing request: %w", err)
	}
	c.authorize(req, token, listingURL)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("access market listing: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Attempted: true,
			Reason:    fmt.Sprintf("market listing returned status %d", resp.StatusCode),
		}, nil
	}

	form := url.Values{
		"sessionid":        {token},
		"currency":         {"1"},
		"appid":            {strconv.Itoa(rustAppID)},
		"market_hash_name": {itemName},
		"price_total":      {strconv.FormatInt(priceCents, 10)},
		"quantity":         {"1"},
		"billing_state":    {""},
		"save_my_address":  {"0"},
	}

	orderURL := c.baseURL + "/market/createbuyorder/"
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, orderURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build buy order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req, token, listingURL)

	resp, err = c.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("place buy order: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Attempted: true,
			Reason:    fmt.Sprintf("buy order returned status %d", resp.StatusCode),
		}, nil
	}

	var order buyOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Result{}, fmt.Errorf("decode buy order response: %w", err)
	}

	if order.Success != 1 {
		reason := order.Message
		if reason == "" {
			reason = "steam rejected the order"
		}
		return Result{Attempted: true, Reason: reason}, nil
	}

	return Result{
		Attempted:  true,
		Success:    true,
		PriceCents: priceCents,
		OrderID:    order.BuyOrderID,
	}, nil
}

func (c *SteamOrderClient) authorize(req *http.Request, token, referer string) {
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: token})
	req.AddCookie(&http.Cookie{Name: "steamLoginSecure", Value: token})
	req.Header.Set("User-Agent", steamUserAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Origin", c.baseURL)
}
