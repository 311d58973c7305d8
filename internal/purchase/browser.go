package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserBuyer drives a real Chrome through the Steam market buy-order
// dialog. Slower and heavier than the order endpoint, but it exercises
// the exact same path a human does, which survives endpoint changes.
type BrowserBuyer struct {
	headless bool
}

// NewBrowserBuyer creates the browser driver.
func NewBrowserBuyer(headless bool) *BrowserBuyer {
	return &BrowserBuyer{headless: headless}
}

// Attempt opens the item's market listing, fills the buy-order dialog and
// submits it. Success is the dialog closing; any stuck step hits the
// attempt deadline and reports failure.
func (b *BrowserBuyer) Attempt(ctx context.Context, token, itemName string, priceCents int64) (Result, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("user-agent", steamUserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, attemptTimeout)
	defer cancelRun()

	listingURL := fmt.Sprintf("%s/market/listings/%d/%s",
		DefaultSteamBaseURL, rustAppID, url.PathEscape(itemName))
	price := fmt.Sprintf("%d.%02d", priceCents/100, priceCents%100)

	slog.Info("Starting browser purchase", "item", itemName, "price", price)

	err := chromedp.Run(runCtx,
		chromedp.Navigate(DefaultSteamBaseURL),

		// Authenticate with the stored session cookies before touching
		// any market page.
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies([]*network.CookieParam{
				{
					Name:   "sessionid",
					Value:  token,
					Domain: "steamcommunity.com",
					Path:   "/",
					Secure: true,
				},
				{
					Name:     "steamLoginSecure",
					Value:    token,
					Domain:   "steamcommunity.com",
					Path:     "/",
					Secure:   true,
					HTTPOnly: true,
				},
			}).Do(ctx)
		}),

		chromedp.Navigate(listingURL),

		// Open the buy-order dialog and fill it in.
		chromedp.WaitVisible("#market_buyorder_btn", chromedp.ByQuery),
		chromedp.Click("#market_buyorder_btn", chromedp.NodeVisible, chromedp.ByQuery),
		chromedp.WaitVisible("#market_buy_commodity_input_price", chromedp.ByQuery),
		chromedp.SetValue("#market_buy_commodity_input_price", price, chromedp.ByQuery),
		chromedp.Click("#market_buyorder_dialog_accept_ssa", chromedp.NodeVisible, chromedp.ByQuery),
		chromedp.Click("#market_buyorder_dialog_purchase", chromedp.NodeVisible, chromedp.ByQuery),

		// The dialog stays open showing an error when Steam rejects the
		// order; it closes on success.
		chromedp.WaitNotVisible("#market_buyorder_dialog_purchase", chromedp.ByQuery),
	)
	if err != nil {
		return Result{Attempted: true}, fmt.Errorf("browser purchase: %w", err)
	}

	slog.Info("Browser purchase placed", "item", itemName, "price", price)
	return Result{
		Attempted:  true,
		Success:    true,
		PriceCents: priceCents,
	}, nil
}
