package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/cal-comb/app/cache"
)

// CacheRepository is the structured tier of the cache
type CacheRepository struct {
	db *DB
}

func NewCacheRepository(db *DB) *CacheRepository {
	return &CacheRepository{db: db}
}

var _ cache.Tier = (*CacheRepository)(nil)

func (r *CacheRepository) Name() string { return "database" }

func (r *CacheRepository) Get(ctx context.Context, key string) (*cache.Entry, error) {
	var payload, capturedAt, expiresAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT payload, captured_at, expires_at FROM cache_entries WHERE key = ?
	`, key).Scan(&payload, &capturedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry := cache.Entry{Key: key, Payload: []byte(payload)}
	if entry.Timestamp, err = parseTime(capturedAt); err != nil {
		return nil, err
	}
	if entry.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *CacheRepository) Put(ctx context.Context, entry cache.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, captured_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			captured_at = excluded.captured_at,
			expires_at = excluded.expires_at
	`, entry.Key, string(entry.Payload), formatTime(entry.Timestamp), formatTime(entry.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose expiry has passed
func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return res.RowsAffected()
}
