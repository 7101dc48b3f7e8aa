package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is the freshness window applied when none is configured
const DefaultTTL = 6 * time.Hour

var ErrStorageUnavailable = errors.New("persistent storage unavailable")

// Entry is the unit stored in every tier
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func NewEntry(key string, value any, capturedAt time.Time, ttl time.Duration) (Entry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	return Entry{
		Key:       key,
		Payload:   payload,
		Timestamp: capturedAt,
		ExpiresAt: capturedAt.Add(ttl),
	}, nil
}

// Expired reports whether now is past the entry's expiry
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode cache entry %s: %w", e.Key, err)
	}
	return nil
}

// Tier is one storage layer. Get returns nil, nil on a miss.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// KV is a durable key-value store with named append-only lists. It is the
// only store the background context writes to.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Append(ctx context.Context, list string, value []byte) error
	List(ctx context.Context, list string) ([][]byte, error)
	TrimFront(ctx context.Context, list string, n int) error
	Close() error
}
