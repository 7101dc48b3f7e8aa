package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileKV is the fallback durable store: a single JSON document rewritten
// atomically on every change.
type FileKV struct {
	mu   sync.Mutex
	path string
	data fileData
}

type fileData struct {
	Values map[string][]byte   `json:"values"`
	Lists  map[string][][]byte `json:"lists"`
}

func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	kv := &FileKV{
		path: path,
		data: fileData{Values: map[string][]byte{}, Lists: map[string][][]byte{}},
	}

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &kv.data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if kv.data.Values == nil {
			kv.data.Values = map[string][]byte{}
		}
		if kv.data.Lists == nil {
			kv.data.Lists = map[string][][]byte{}
		}
	}

	// Probe writability so callers learn about a read-only path up front
	if err := kv.save(); err != nil {
		return nil, err
	}

	return kv, nil
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.data.Values[key]
	return v, ok, nil
}

func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data.Values[key] = value
	return f.save()
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data.Values[key]; !ok {
		return nil
	}
	delete(f.data.Values, key)
	return f.save()
}

func (f *FileKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.data.Values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *FileKV) Append(ctx context.Context, list string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data.Lists[list] = append(f.data.Lists[list], value)
	return f.save()
}

func (f *FileKV) List(ctx context.Context, list string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.data.Lists[list]
	out := make([][]byte, len(items))
	copy(out, items)
	return out, nil
}

func (f *FileKV) TrimFront(ctx context.Context, list string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.data.Lists[list]
	if n <= 0 || len(items) == 0 {
		return nil
	}
	if n >= len(items) {
		delete(f.data.Lists, list)
	} else {
		f.data.Lists[list] = append([][]byte(nil), items[n:]...)
	}
	return f.save()
}

func (f *FileKV) Close() error {
	return nil
}

func (f *FileKV) save() error {
	raw, err := json.Marshal(&f.data)
	if err != nil {
		return fmt.Errorf("failed to encode key-value data: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
