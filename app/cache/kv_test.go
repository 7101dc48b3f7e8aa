package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileKVPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv", "store.json")

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}
	kv.Set(ctx, "a", []byte("1"))
	kv.Append(ctx, "queue", []byte("first"))
	kv.Append(ctx, "queue", []byte("second"))

	reopened, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}

	v, ok, _ := reopened.Get(ctx, "a")
	if !ok || string(v) != "1" {
		t.Errorf("Expected persisted value '1', got '%s' (ok=%v)", v, ok)
	}

	items, _ := reopened.List(ctx, "queue")
	if len(items) != 2 || string(items[0]) != "first" {
		t.Errorf("Expected persisted list, got %q", items)
	}

	reopened.TrimFront(ctx, "queue", 1)
	items, _ = reopened.List(ctx, "queue")
	if len(items) != 1 || string(items[0]) != "second" {
		t.Errorf("Expected only 'second' after trim, got %q", items)
	}

	reopened.TrimFront(ctx, "queue", 5)
	items, _ = reopened.List(ctx, "queue")
	if len(items) != 0 {
		t.Errorf("Expected empty list, got %q", items)
	}
}

func TestFileKVKeys(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatal(err)
	}

	kv.Set(ctx, "cache:a", []byte("1"))
	kv.Set(ctx, "cache:b", []byte("2"))
	kv.Set(ctx, "other", []byte("3"))

	keys, _ := kv.Keys(ctx, "cache:")
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}
}

func TestKVTierObfuscatesPayloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}
	tier := NewKVTier(kv)

	entry, _ := NewEntry("2025-03-14", map[string]string{"title": "Secret meeting"}, time.Now(), time.Hour)
	if err := tier.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "Secret meeting") {
		t.Error("Expected payload to be obfuscated on disk")
	}

	got, err := tier.Get(ctx, "2025-03-14")
	if err != nil || got == nil {
		t.Fatalf("Expected entry back, got %v (%v)", got, err)
	}
	var decoded map[string]string
	got.Decode(&decoded)
	if decoded["title"] != "Secret meeting" {
		t.Errorf("Expected round-tripped title, got %v", decoded)
	}

	tier.Clear(ctx)
	if got, _ := tier.Get(ctx, "2025-03-14"); got != nil {
		t.Error("Expected tier to be cleared")
	}
}

func TestOpenKVFallsBackToFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := OpenKV(ctx, "127.0.0.1:1", filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("Expected fallback store, got %v", err)
	}
	defer kv.Close()

	if _, ok := kv.(*FileKV); !ok {
		t.Errorf("Expected *FileKV, got %T", kv)
	}
}

func TestObfuscateRoundTrip(t *testing.T) {
	data := []byte(`{"calendarId":"work"}`)
	encoded := Obfuscate(data)

	if strings.Contains(encoded, "calendarId") {
		t.Error("Expected encoded form to hide the plain text")
	}

	decoded, err := Deobfuscate(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(data) {
		t.Errorf("Expected '%s', got '%s'", data, decoded)
	}

	if _, err := Deobfuscate("%%%"); err == nil {
		t.Error("Expected error for invalid input")
	}
}
