package mailmerge

import (
	"testing"
	"time"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/docxtest"
)

func TestTemplateCacheLRU(t *testing.T) {
	cache := NewTemplateCacheWithConfig(CacheConfig{MaxSize: 2})
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("x")))

	cache.Set("a", tmpl)
	cache.Set("b", tmpl)
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}

	// b is now least recently used.
	cache.Set("c", tmpl)
	if _, ok := cache.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}

	cache.Remove("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("expected a to be removed")
	}
	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", cache.Size())
	}
}

func TestTemplateCacheTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTemplateCacheWithConfig(CacheConfig{MaxSize: 10, TTL: time.Minute})
	cache.now = func() time.Time { return now }
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("x")))

	cache.Set("k", tmpl)
	now = now.Add(30 * time.Second)
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}
	now = now.Add(time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Error("entry should have expired")
	}
	if cache.Size() != 0 {
		t.Errorf("expired entry not removed, Size() = %d", cache.Size())
	}
}

func TestTemplateCacheDisabled(t *testing.T) {
	cache := NewTemplateCacheWithConfig(CacheConfig{MaxSize: 0})
	cache.Set("k", prepareFixture(t, docxtest.New(docxtest.Paragraph("x"))))
	if cache.Size() != 0 {
		t.Error("disabled cache stored an entry")
	}
}
