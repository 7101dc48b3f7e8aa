package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxFeedSize = 10 << 20

const acceptHeader = "text/calendar, text/plain, */*"

// ViaDirect marks a feed fetched without any proxy
const ViaDirect = "direct"

var (
	ErrSourceUnreachable = errors.New("calendar source unreachable")
	ErrNotCalendarFeed   = errors.New("response is not a calendar feed")
)

// Proxy rewrites a target URL into a request through a public relay.
// Wrap must be pure so each proxy can be tested alone.
type Proxy struct {
	Name string
	Wrap func(target string) string
}

// TemplateProxy builds a proxy from a template containing {url}
func TemplateProxy(name, template string) Proxy {
	return Proxy{
		Name: name,
		Wrap: func(target string) string {
			return strings.ReplaceAll(template, "{url}", url.QueryEscape(target))
		},
	}
}

// ProxiesFromTemplates names each proxy after its host, keeping order
func ProxiesFromTemplates(templates []string) []Proxy {
	proxies := make([]Proxy, 0, len(templates))
	for _, template := range templates {
		template = strings.TrimSpace(template)
		if template == "" {
			continue
		}
		name := template
		if u, err := url.Parse(strings.ReplaceAll(template, "{url}", "")); err == nil && u.Host != "" {
			name = u.Host
		}
		proxies = append(proxies, TemplateProxy(name, template))
	}
	return proxies
}

type FetchResult struct {
	Body      []byte
	Via       string
	FetchedAt time.Time
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	proxies   []Proxy
}

func NewFetcher(timeout time.Duration, userAgent string, proxies []Proxy) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		proxies:   proxies,
	}
}

// Fetch tries the feed directly, then through each proxy in order, and
// returns the first body that looks like a calendar feed.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*FetchResult, error) {
	if feedURL == "" {
		return nil, fmt.Errorf("%w: source URL is empty", ErrSourceUnreachable)
	}

	attempts := make([]Proxy, 0, len(f.proxies)+1)
	attempts = append(attempts, Proxy{Name: ViaDirect, Wrap: func(target string) string { return target }})
	attempts = append(attempts, f.proxies...)

	var lastErr error
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
		}

		body, err := f.get(ctx, attempt.Wrap(feedURL))
		if err != nil {
			slog.Debug("Feed fetch attempt failed", "url", RedactURL(feedURL), "via", attempt.Name, "error", err)
			lastErr = err
			continue
		}

		slog.Debug("Feed fetched", "url", RedactURL(feedURL), "via", attempt.Name, "bytes", len(body))
		return &FetchResult{Body: body, Via: attempt.Name, FetchedAt: time.Now()}, nil
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, RedactURL(feedURL), lastErr)
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !IsCalendarFeed(body) {
		return nil, ErrNotCalendarFeed
	}

	return body, nil
}

// IsCalendarFeed reports whether body carries the iCalendar signature
func IsCalendarFeed(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("begin:vcalendar"))
}

// RedactURL keeps only scheme and host so private feed tokens stay out of logs
func RedactURL(raw string) string {
	const redactedSuffix = "/...(redacted)"

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + redactedSuffix
}
