package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("text-embedding-3-small", "collision coverage")
	b := Key("text-embedding-3-small", "collision coverage")
	c := Key("text-embedding-3-large", "collision coverage")

	if a != b {
		t.Error("expected identical keys for identical input")
	}
	if a == c {
		t.Error("expected namespace to change the key")
	}
	if Key("ns", "ab", "c") == Key("ns", "a", "bc") {
		t.Error("expected part boundaries to change the key")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	_ = c.Set("k", []byte("v"), 0)
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Errorf("expected hit with v, got %q %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 item, got %d", c.Len())
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestDiskCache_SetGetExpire(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("test", "value")
	if err := c.Set(key, []byte("payload"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, ok := c.Get(key); !ok || string(got) != "payload" {
		t.Errorf("expected payload, got %q %v", got, ok)
	}

	if err := c.Set(key, []byte("stale"), time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("expected no temp files, got %v", leftovers)
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("test", "corrupt")
	if err := os.WriteFile(c.path(key), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected corrupt entry to miss")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("expected delete of removed entry to succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	first := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := first.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewLayeredCache(time.Minute, dir, time.Hour)
	if got, ok := second.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}
	if got, ok := second.memory.Get("k"); !ok || string(got) != "v" {
		t.Error("expected disk hit to be promoted to memory")
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(model.CacheConfig{Enabled: false}).(Noop); !ok {
		t.Error("expected Noop cache when disabled")
	}
	if _, ok := FromConfig(model.CacheConfig{Enabled: true}).(*MemoryCache); !ok {
		t.Error("expected memory cache without a dir")
	}
	if _, ok := FromConfig(model.CacheConfig{Enabled: true, Dir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("expected layered cache with a dir")
	}
}
