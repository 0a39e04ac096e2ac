package builder

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/config"
	"github.com/park285/Cheese-Arena/internal/lobby"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		JWTSecret:       "s",
		UserTokenTTL:    time.Hour,
		GuestTokenTTL:   time.Hour,
		SessionTTL:      time.Hour,
		DrawOfferTTL:    30 * time.Second,
		RatingDefault:   1200,
		RatingIncrement: 10,
		RatingMin:       100,
		RatingMax:       3000,
		MatchDurability: "reconcile",
		CacheDriver:     "memory",
		StoreDriver:     "memory",
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:pw@cache.internal:6380/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "pw" || opts.DB != 3 || opts.TLSConfig != nil {
		t.Fatalf("opts: %+v", opts)
	}
	opts, err = parseRedisURL("rediss://user:pw@cache.internal")
	if err != nil {
		t.Fatalf("parse tls: %v", err)
	}
	if opts.Addr != "cache.internal:6379" || opts.Username != "user" || opts.TLSConfig == nil {
		t.Fatalf("tls opts: %+v", opts)
	}
	for _, bad := range []string{"http://x", "redis://x:port", "redis://x/db"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}
}

func TestNewInMemory(t *testing.T) {
	d, err := New(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	if _, ok := d.Cache.(*sessioncache.Memory); !ok {
		t.Fatalf("cache = %T", d.Cache)
	}
	if _, ok := d.Store.(*store.Memory); !ok {
		t.Fatalf("store = %T", d.Store)
	}
	if d.Relay != nil || d.Redis != nil {
		t.Fatalf("redis should not be dialed")
	}
	if err := d.StartRelay(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}

	// the wired lobby opens live sessions in the wired cache
	seated, err := d.Lobby.Create(context.Background(), auth.Identity{ID: "guest-a", Guest: true}, lobby.ColorWhite)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s, _ := d.Cache.Get(context.Background(), seated.Match.ID); s == nil {
		t.Fatalf("session missing from cache")
	}
}

func TestNewRedisWithRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.CacheDriver = "redis"
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.RoomRelay = true

	d, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	if _, ok := d.Cache.(*sessioncache.Redis); !ok {
		t.Fatalf("cache = %T", d.Cache)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.StartRelay(ctx); err != nil {
		t.Fatalf("relay: %v", err)
	}
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := baseConfig()
	cfg.CacheDriver = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected ping failure")
	}
}
