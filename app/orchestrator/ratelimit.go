package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/cal-comb/app/cache"
)

// Minimum spacing between fetches, one per subsystem
const (
	CalendarsInterval = 5 * time.Minute
	PagesInterval     = time.Hour
	PeriodicInterval  = 12 * time.Hour
)

var ErrRateLimited = errors.New("refresh suppressed by rate limit")

type Category string

const (
	CategoryCalendars Category = "calendars"
	CategoryPeriodic  Category = "periodic"
	categoryPages     Category = "pages"
)

// PageCategory scopes the hourly page limit to one calendar
func PageCategory(calendarID string) Category {
	return categoryPages + ":" + Category(calendarID)
}

const rateLimitPrefix = "ratelimit:"

// RateLimiter remembers when each category last fetched. With a KV the
// timestamps are shared with the background context and survive restarts.
type RateLimiter struct {
	kv    cache.KV
	now   func() time.Time
	mu    sync.Mutex
	marks map[Category]time.Time
}

func NewRateLimiter(kv cache.KV) *RateLimiter {
	return &RateLimiter{kv: kv, now: time.Now, marks: make(map[Category]time.Time)}
}

func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

func (l *RateLimiter) Interval(category Category) time.Duration {
	switch {
	case category == CategoryCalendars:
		return CalendarsInterval
	case category == CategoryPeriodic:
		return PeriodicInterval
	case strings.HasPrefix(string(category), string(categoryPages)):
		return PagesInterval
	default:
		return CalendarsInterval
	}
}

// Allow reports whether a fetch for category may run now
func (l *RateLimiter) Allow(ctx context.Context, category Category, force bool) bool {
	if force {
		return true
	}
	return l.AllowAfter(ctx, category, l.Interval(category))
}

// AllowAfter reports whether at least spacing has passed since the last fetch
func (l *RateLimiter) AllowAfter(ctx context.Context, category Category, spacing time.Duration) bool {
	last, ok := l.Last(ctx, category)
	if !ok {
		return true
	}
	return l.now().Sub(last) >= spacing
}

// Mark records a fetch for category at the current time
func (l *RateLimiter) Mark(ctx context.Context, category Category) {
	now := l.now()

	l.mu.Lock()
	l.marks[category] = now
	l.mu.Unlock()

	if l.kv == nil {
		return
	}
	if err := l.kv.Set(ctx, rateLimitPrefix+string(category), []byte(now.Format(time.RFC3339Nano))); err != nil {
		slog.Warn("Failed to persist rate limit mark", "category", category, "error", err)
	}
}

func (l *RateLimiter) Last(ctx context.Context, category Category) (time.Time, bool) {
	l.mu.Lock()
	last, ok := l.marks[category]
	l.mu.Unlock()

	if l.kv == nil {
		return last, ok
	}

	raw, found, err := l.kv.Get(ctx, rateLimitPrefix+string(category))
	if err != nil || !found {
		return last, ok
	}
	stored, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return last, ok
	}
	if !ok || stored.After(last) {
		return stored, true
	}
	return last, true
}
