package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeyScoping(t *testing.T) {
	got := Key("northside", "claims-aging", "2026-08")
	want := "practice:northside:claims-aging:2026-08"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dest map[string]int
	hit, err := c.GetJSON(ctx, "k", &dest)
	if err != nil || hit {
		t.Errorf("nil cache GetJSON = (%v, %v), want miss without error", hit, err)
	}
	if err := c.SetJSON(ctx, "k", map[string]int{"a": 1}); err != nil {
		t.Errorf("nil cache SetJSON: %v", err)
	}
	if err := c.Invalidate(ctx, "t", "n"); err != nil {
		t.Errorf("nil cache Invalidate: %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("nil cache Ping: %v", err)
	}
}

func TestNewWithoutURL(t *testing.T) {
	c, err := New("", 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("empty url should yield nil cache")
	}
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not-a-url", time.Minute); err == nil {
		t.Error("expected error for malformed redis url")
	}
}
