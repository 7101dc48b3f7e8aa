package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Tiered reads tiers fastest first and writes through all of them. A failing
// tier is logged and skipped.
type Tiered struct {
	tiers []Tier
	ttl   time.Duration
	now   func() time.Time
}

func NewTiered(ttl time.Duration, tiers ...Tier) *Tiered {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tiered{tiers: tiers, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for expiry checks
func (c *Tiered) WithClock(now func() time.Time) *Tiered {
	c.now = now
	return c
}

func (c *Tiered) TTL() time.Duration { return c.ttl }

// Get returns the first unexpired entry and copies it into the faster tiers
func (c *Tiered) Get(ctx context.Context, key string) (*Entry, bool) {
	now := c.now()

	for i, tier := range c.tiers {
		e, err := tier.Get(ctx, key)
		if err != nil {
			slog.Warn("Cache tier read failed", "tier", tier.Name(), "key", key, "error", err)
			continue
		}
		if e == nil || e.Expired(now) {
			continue
		}

		for _, faster := range c.tiers[:i] {
			if err := faster.Put(ctx, *e); err != nil {
				slog.Warn("Cache write-back failed", "tier", faster.Name(), "key", key, "error", err)
			}
		}
		return e, true
	}

	return nil, false
}

// Load decodes a fresh entry into v
func (c *Tiered) Load(ctx context.Context, key string, v any) (bool, error) {
	e, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := e.Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

// Put writes entry to every tier; it fails only if no tier accepted it
func (c *Tiered) Put(ctx context.Context, entry Entry) error {
	var errs []error
	for _, tier := range c.tiers {
		if err := tier.Put(ctx, entry); err != nil {
			slog.Warn("Cache tier write failed", "tier", tier.Name(), "key", entry.Key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	if len(errs) > 0 && len(errs) == len(c.tiers) {
		return errors.Join(errs...)
	}
	return nil
}

// Store marshals value into a fresh entry captured at capturedAt
func (c *Tiered) Store(ctx context.Context, key string, value any, capturedAt time.Time) error {
	entry, err := NewEntry(key, value, capturedAt, c.ttl)
	if err != nil {
		return err
	}
	return c.Put(ctx, entry)
}

// PutIfNewer refuses to replace a fresh entry captured after entry
func (c *Tiered) PutIfNewer(ctx context.Context, entry Entry) (bool, error) {
	if existing, ok := c.Get(ctx, entry.Key); ok && existing.Timestamp.After(entry.Timestamp) {
		return false, nil
	}
	if err := c.Put(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Tiered) Delete(ctx context.Context, key string) {
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			slog.Warn("Cache tier delete failed", "tier", tier.Name(), "key", key, "error", err)
		}
	}
}

func (c *Tiered) Clear(ctx context.Context) {
	for _, tier := range c.tiers {
		if err := tier.Clear(ctx); err != nil {
			slog.Warn("Cache tier clear failed", "tier", tier.Name(), "error", err)
		}
	}
}
