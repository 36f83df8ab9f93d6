package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(rdb), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	q := &OfficialQuota{Quota: 500, Used: 200, Remaining: 300, Percentage: 40}
	if err := c.Store(ctx, "shop-1", q, time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	got, err := c.Get(ctx, "shop-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for stored quota")
	}
	if got.Quota != 500 || got.Used != 200 || got.Remaining != 300 {
		t.Errorf("got = %+v, want stored values", got)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.Get(context.Background(), "shop-unknown")
	if err != nil {
		t.Fatalf("Get returned error on miss: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil on miss", got)
	}
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	q := &OfficialQuota{Quota: 500, Used: 200}
	if err := c.Store(ctx, "shop-1", q, time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "shop-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil after TTL expiry", got)
	}
}

func TestNoopCache(t *testing.T) {
	var c QuotaCache = Noop{}
	ctx := context.Background()

	if err := c.Store(ctx, "shop-1", &OfficialQuota{Quota: 1}, time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	got, err := c.Get(ctx, "shop-1")
	if err != nil || got != nil {
		t.Errorf("Noop Get = (%v, %v), want (nil, nil)", got, err)
	}
}
