package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const maxPageSize = 20 << 20

var ErrEmptyPage = errors.New("page returned no content")

// Fetcher retrieves the raw HTML of a page
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

type DirectFetcher struct {
	client    *http.Client
	userAgent string
}

func NewDirectFetcher(timeout time.Duration, userAgent string) *DirectFetcher {
	return &DirectFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (f *DirectFetcher) Name() string { return "direct" }

func (f *DirectFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := get(ctx, f.client, pageURL, f.userAgent, "text/html,application/xhtml+xml,*/*")
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyPage
	}
	return body, nil
}

// EnvelopeFetcher goes through a CORS bridge that answers with a JSON
// envelope whose contents field holds the page HTML.
type EnvelopeFetcher struct {
	client    *http.Client
	template  string
	userAgent string
}

func NewEnvelopeFetcher(timeout time.Duration, template, userAgent string) *EnvelopeFetcher {
	return &EnvelopeFetcher{
		client:    &http.Client{Timeout: timeout},
		template:  template,
		userAgent: userAgent,
	}
}

func (f *EnvelopeFetcher) Name() string { return "envelope" }

type envelope struct {
	Contents string `json:"contents"`
}

func (f *EnvelopeFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	target := strings.ReplaceAll(f.template, "{url}", url.QueryEscape(pageURL))

	body, err := get(ctx, f.client, target, f.userAgent, "application/json")
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode proxy envelope: %w", err)
	}
	if strings.TrimSpace(env.Contents) == "" {
		return nil, ErrEmptyPage
	}
	return []byte(env.Contents), nil
}

// ChromeFetcher renders the page in headless Chromium so rows built by
// client-side scripts are present in the captured HTML.
type ChromeFetcher struct {
	timeout time.Duration
	settle  time.Duration
}

func NewChromeFetcher(timeout time.Duration) *ChromeFetcher {
	return &ChromeFetcher{timeout: timeout, settle: 2 * time.Second}
}

func (f *ChromeFetcher) Name() string { return "chrome" }

func (f *ChromeFetcher) Fetch(parentCtx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, f.timeout)
	defer timeoutCancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Let client-side rendering fill in the table
		chromedp.Sleep(f.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run failed: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return nil, ErrEmptyPage
	}
	return []byte(html), nil
}

// ChainFetcher returns the first successful fetch from its fetchers
type ChainFetcher struct {
	fetchers []Fetcher
}

func NewChainFetcher(fetchers ...Fetcher) *ChainFetcher {
	return &ChainFetcher{fetchers: fetchers}
}

func (c *ChainFetcher) Name() string {
	names := make([]string, len(c.fetchers))
	for i, f := range c.fetchers {
		names[i] = f.Name()
	}
	return strings.Join(names, ">")
}

func (c *ChainFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error = ErrEmptyPage
	for _, f := range c.fetchers {
		body, err := f.Fetch(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		slog.Debug("Page fetch attempt failed", "fetcher", f.Name(), "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("failed to fetch page: %w", lastErr)
}

func get(ctx context.Context, client *http.Client, target, userAgent, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
