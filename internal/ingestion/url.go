package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/types"
)

// URLOptions configures a share-page import
type URLOptions struct {
	// Fetcher serves the page; nil fetches directly
	Fetcher fetch.Fetcher
	// UseBrowser falls back to headless rendering when the static HTML holds no turns
	UseBrowser bool
	Verbose    bool
	Source     types.Source
	// render is replaced in tests
	render func(ctx context.Context, url, waitSelector string, verbose bool) (string, error)
}

// FromURL fetches a share page and reads the conversation on it.
func FromURL(ctx context.Context, urlStr string, opts URLOptions) (*Result, error) {
	if u, err := url.Parse(urlStr); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, urlStr)
	}

	platform := fetch.DetectPlatform(urlStr)
	if opts.Verbose {
		log.Printf("[VERBOSE] URL: %s", urlStr)
		log.Printf("[VERBOSE] Detected platform: %s", platform)
	}

	html, err := fetchHTML(ctx, urlStr, opts.Fetcher)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	if opts.Verbose {
		log.Printf("[VERBOSE] Fetched HTML: %d bytes", len(html))
	}

	conv, err := ParseSharePage(html, urlStr, opts.Source)
	if err != nil && opts.UseBrowser && errors.Is(err, ErrContentExtractionFailed) {
		if opts.Verbose {
			log.Printf("[VERBOSE] No turns in static HTML, falling back to browser rendering...")
		}
		render := opts.render
		if render == nil {
			render = func(ctx context.Context, url, wait string, verbose bool) (string, error) {
				return fetch.WithBrowser(ctx, url, fetch.DefaultBrowserTimeout, wait, verbose)
			}
		}
		rendered, browserErr := render(ctx, urlStr, WaitSelector(platform), opts.Verbose)
		if browserErr != nil {
			return nil, fmt.Errorf("%w: %w", err, browserErr)
		}
		html = rendered
		conv, err = ParseSharePage(html, urlStr, opts.Source)
	}
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Printf("[VERBOSE] Extracted %d messages", len(conv.Messages))
	}

	convs := []*types.Conversation{conv}
	md := NewMetadata([]byte(html), urlStr, FormatHTML).tally(convs)
	md.Platform = string(platform)
	return &Result{Conversations: convs, Metadata: md}, nil
}

func fetchHTML(ctx context.Context, urlStr string, fetcher fetch.Fetcher) (string, error) {
	if fetcher != nil {
		res, err := fetcher.Fetch(ctx, urlStr)
		if err != nil {
			return "", err
		}
		return res.HTML, nil
	}
	res, err := fetch.URL(ctx, urlStr, nil)
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}
