package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := New("redis://"+s.Addr(), 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c, s
}

func TestSetAndGet(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	value := map[string]int{"total": 5}
	if err := c.Set(ctx, "stats", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got map[string]int
	if err := c.Get(ctx, "stats", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["total"] != 5 {
		t.Errorf("expected total 5, got %d", got["total"])
	}
}

func TestGetMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	var got map[string]int
	if err := c.Get(context.Background(), "absent", &got); err != ErrMiss {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "dictionaries", []string{"a"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(31 * time.Second)

	var got []string
	if err := c.Get(ctx, "dictionaries", &got); err != ErrMiss {
		t.Errorf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "stats", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Invalidate(ctx, "stats"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	var got int
	if err := c.Get(ctx, "stats", &got); err != ErrMiss {
		t.Errorf("expected ErrMiss after invalidate, got %v", err)
	}
}
