package annotator

import (
	"strings"
	"testing"
	"time"
)

func TestCacheKey_TruncatesToPrefix(t *testing.T) {
	short := "hello world"
	if got := CacheKey(short); got != short {
		t.Fatalf("short text must be its own key, got %q", got)
	}

	long := strings.Repeat("あ", 600)
	key := CacheKey(long)
	if got := len([]rune(key)); got != 500 {
		t.Fatalf("expected 500-rune key, got %d runes", got)
	}
}

func TestCache_RoundTripWithinTTL(t *testing.T) {
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cache := NewCacheWithClock(10*time.Minute, func() time.Time { return current })

	result := Result{Entries: []Entry{{Surface: "ephemeral", Reading: "エフェメラル", Gloss: "儚い"}}}
	cache.Put("key", result)

	current = current.Add(9 * time.Minute)
	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if len(got.Entries) != 1 || got.Entries[0].Surface != "ephemeral" {
		t.Fatalf("unexpected cached result: %+v", got)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cache := NewCacheWithClock(10*time.Minute, func() time.Time { return current })

	cache.Put("key", Result{})
	current = current.Add(11 * time.Minute)
	if _, ok := cache.Get("key"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestCache_SweepsOnEveryAccess(t *testing.T) {
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cache := NewCacheWithClock(10*time.Minute, func() time.Time { return current })

	cache.Put("old", Result{})
	current = current.Add(11 * time.Minute)

	// Accessing an unrelated key must still purge the expired one.
	cache.Put("fresh", Result{})
	if got := cache.Len(); got != 1 {
		t.Fatalf("expected expired entry swept on write, %d entries live", got)
	}
}

func TestCache_EmptyResultIsCached(t *testing.T) {
	cache := NewCache(10 * time.Minute)
	cache.Put("key", Result{})
	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("an empty result is a real result and must be cached")
	}
	if len(got.Entries) != 0 {
		t.Fatalf("expected empty entries, got %+v", got)
	}
}
