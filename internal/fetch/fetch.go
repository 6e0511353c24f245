// Package fetch retrieves conversation share pages and reduces them to the
// text of the transcript.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultTimeout bounds a single share-page request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps how much of a share page is read.
	DefaultMaxBytes = 10 << 20
	// DefaultUserAgent identifies crystal to share-page hosts.
	DefaultUserAgent = "Mozilla/5.0 (compatible; ContextCrystal/1.0)"
)

// pageChrome never carries transcript text on any platform.
const pageChrome = "nav, footer, header, script, style, noscript, svg, template, .ad, .ads, .advertisement, .sidebar, .cookie-banner, .popup"

// Result is a fetched share page.
type Result struct {
	URL         string
	HTML        string
	Text        string
	ContentType string
	StatusCode  int
	Platform    Platform
}

// Error reports a share page that could not be retrieved.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := "fetch " + e.URL + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options tunes share-page requests.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// MaxBytes caps the response body; zero means DefaultMaxBytes
	MaxBytes int64
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

func (o *Options) bodyLimit() int64 {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return DefaultMaxBytes
}

// URL downloads a share page over plain HTTP. Pages rendered client-side
// need WithBrowser instead. On a non-2xx status the partial Result is
// returned alongside the error.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := checkShareURL(urlStr); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "bad request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := (&http.Client{Timeout: opts.Timeout}).Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.bodyLimit()))
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "reading body", Cause: err}
	}

	res := &Result{
		URL:         urlStr,
		HTML:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Platform:    DetectPlatform(urlStr),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, &Error{URL: urlStr, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return res, nil
}

func checkShareURL(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return &Error{URL: urlStr, Message: "invalid URL: unsupported scheme " + u.Scheme}
	}
}

// ExtractMainText returns the visible text of the first region matching
// contentSelectors, or of <body> when none match. Page chrome and anything
// matching noiseSelectors is dropped first. Blank lines are removed.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing share page: %w", err)
	}

	doc.Find(pageChrome).Remove()
	if len(noiseSelectors) > 0 {
		doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	}

	region := doc.Find("body")
	for _, sel := range contentSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			region = found.First()
			break
		}
	}
	return nonBlankLines(region.Text()), nil
}

// DefaultTextSelectors locate the content region on pages of unknown platforms.
func DefaultTextSelectors() []string {
	return []string{"main", "article", ".content", "#content", ".main-content", "#main-content"}
}

func nonBlankLines(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return sb.String()
}
