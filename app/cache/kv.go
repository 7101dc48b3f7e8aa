package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// OpenKV prefers Redis and falls back to a local file when Redis is not
// configured or cannot be reached.
func OpenKV(ctx context.Context, redisAddr, path string) (KV, error) {
	if redisAddr != "" {
		kv, err := NewRedisKV(ctx, redisAddr)
		if err == nil {
			return kv, nil
		}
		slog.Warn("Redis unavailable, falling back to file store", "addr", redisAddr, "path", path, "error", err)
	}

	kv, err := NewFileKV(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return kv, nil
}

const entryPrefix = "cache:"

// KVTier stores obfuscated entries in a KV
type KVTier struct {
	kv KV
}

func NewKVTier(kv KV) *KVTier {
	return &KVTier{kv: kv}
}

func (t *KVTier) Name() string { return "kv" }

func (t *KVTier) Get(ctx context.Context, key string) (*Entry, error) {
	raw, ok, err := t.kv.Get(ctx, entryPrefix+key)
	if err != nil || !ok {
		return nil, err
	}

	data, err := Deobfuscate(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", key, err)
	}
	return &e, nil
}

func (t *KVTier) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", entry.Key, err)
	}
	return t.kv.Set(ctx, entryPrefix+entry.Key, []byte(Obfuscate(data)))
}

func (t *KVTier) Delete(ctx context.Context, key string) error {
	return t.kv.Delete(ctx, entryPrefix+key)
}

func (t *KVTier) Clear(ctx context.Context) error {
	keys, err := t.kv.Keys(ctx, entryPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
