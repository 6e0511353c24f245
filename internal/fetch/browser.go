package fetch

import (
	"context"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultBrowserTimeout bounds a headless render
const DefaultBrowserTimeout = 45 * time.Second

// settleDelay is how long a page without a known turn selector gets to
// hydrate before its DOM is read.
const settleDelay = 3 * time.Second

var browserFlags = append(chromedp.DefaultExecAllocatorOptions[:],
	chromedp.Flag("headless", true),
	chromedp.Flag("disable-gpu", true),
	chromedp.Flag("no-sandbox", true),
	chromedp.Flag("disable-dev-shm-usage", true),
	chromedp.UserAgent(DefaultUserAgent),
)

// WithBrowser loads a share page in headless Chrome and returns the DOM once
// the conversation has rendered. With a turnSelector it waits for the first
// turn to be visible; otherwise it waits a fixed settle delay.
func WithBrowser(ctx context.Context, url string, timeout time.Duration, turnSelector string, verbose bool) (string, error) {
	if verbose {
		log.Printf("[BROWSER] Rendering %s", url)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, browserFlags...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	rendered := chromedp.Sleep(settleDelay)
	if turnSelector != "" {
		rendered = chromedp.WaitVisible(turnSelector, chromedp.ByQuery)
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		rendered,
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	if verbose {
		log.Printf("[BROWSER] %s rendered to %d bytes", url, len(html))
	}
	return html, nil
}

