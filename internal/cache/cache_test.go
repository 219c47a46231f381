package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("jobs", 1, "remote analyst", "15", "false")
	if a != Key("jobs", 1, "remote analyst", "15", "false") {
		t.Error("Key must be deterministic")
	}
	if a == Key("jobs", 2, "remote analyst", "15", "false") {
		t.Error("a new generation must change the key")
	}
	if Key("jobs", 1, "ab", "c") == Key("jobs", 1, "a", "bc") {
		t.Error("parts must be delimited")
	}
}

func TestNopCache(t *testing.T) {
	c := NewNopCache()
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Errorf("Get = %v, %v; want miss", ok, err)
	}
}

func TestNewRedisCache_BadURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), "not a url", time.Minute); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

// TestRedisCache_Roundtrip runs against a real server when REDIS_URL is set.
func TestRedisCache_Roundtrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	col := "test-" + time.Now().Format("150405.000000")
	gen, err := c.Generation(ctx, col)
	if err != nil || gen != 0 {
		t.Fatalf("Generation = %d, %v", gen, err)
	}
	if err := c.Set(ctx, Key(col, gen, "q"), []byte("cached")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if b, ok, err := c.Get(ctx, Key(col, gen, "q")); !ok || err != nil || string(b) != "cached" {
		t.Fatalf("Get = %q, %v, %v", b, ok, err)
	}
	if err := c.Bump(ctx, col); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if gen2, _ := c.Generation(ctx, col); gen2 != 1 {
		t.Errorf("generation after bump = %d, want 1", gen2)
	}
}
