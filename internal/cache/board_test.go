package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/shopspring/decimal"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*BoardCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewBoardCache("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create board cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func testSnapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		Stages: []pipeline.Stage{{ID: "lead", Name: "Lead", Position: 0}},
		Deals: []pipeline.Deal{{
			ID:      "d1",
			Title:   "Projeto Website",
			Value:   decimal.RequireFromString("5000.25"),
			StageID: "lead",
		}},
	}
}

func TestNewBoardCacheRejectsBadURL(t *testing.T) {
	if _, err := NewBoardCache("not a url", time.Minute); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestBoardCacheMiss(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	_, generation, ok, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}
	if generation != 0 {
		t.Fatalf("expected generation 0, got %d", generation)
	}
}

func TestBoardCacheSetGetInvalidate(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, 0, testSnapshot()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := s.TTL(boardKey + ":0"); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %s", ttl)
	}

	got, _, ok, err := c.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if len(got.Deals) != 1 || !got.Deals[0].Value.Equal(decimal.RequireFromString("5000.25")) {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, _, ok, _ := c.Get(ctx); ok {
		t.Fatal("expected miss after invalidate")
	}
	if s.Exists(boardKey + ":0") {
		t.Fatal("expected previous generation entry to be deleted")
	}
}

func TestBoardCacheExpires(t *testing.T) {
	c, s := setupTestCache(t, 2*time.Second)
	ctx := context.Background()

	if err := c.Set(ctx, 0, testSnapshot()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(3 * time.Second)

	if _, _, ok, _ := c.Get(ctx); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestBoardCacheCorruptEntry(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	if err := s.Set(boardKey+":0", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, _, _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBoardCacheDropsSetFromBeforeInvalidate(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	_, generation, ok, err := c.Get(ctx)
	if err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	// A write lands between the reader's miss and its Set.
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if err := c.Set(ctx, generation, testSnapshot()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, current, ok, err := c.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("expected the snapshot read before the write to stay invisible")
	}
	if current != generation+1 {
		t.Fatalf("expected generation %d, got %d", generation+1, current)
	}
}

func TestBoardCachePing(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	s.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after redis stopped")
	}
}
