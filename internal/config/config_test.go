package config

import (
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/arena?sslmode=disable")
}

func TestParseDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.WSAddr != ":7000" || cfg.HTTPAddr != ":7001" {
		t.Fatalf("addrs: %q %q", cfg.WSAddr, cfg.HTTPAddr)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.DrawOfferTTL != 30*time.Second {
		t.Fatalf("ttls: %v %v", cfg.SessionTTL, cfg.DrawOfferTTL)
	}
	if cfg.RecoverInterval != time.Minute {
		t.Fatalf("recover interval: %v", cfg.RecoverInterval)
	}
	if cfg.RatingDefault != 1200 || cfg.RatingIncrement != 10 || cfg.RatingResignPenalty != 20 || cfg.RatingMin != 100 || cfg.RatingMax != 3000 {
		t.Fatalf("rating defaults: %+v", cfg)
	}
	if cfg.MatchDurability != "reconcile" || cfg.StoreDriver != "postgres" || cfg.CacheDriver != "redis" {
		t.Fatalf("drivers: %+v", cfg)
	}
	if o := cfg.Log.Options(); o.Format != "legacy" || !o.ToConsole || o.ToFile {
		t.Fatalf("log options: %+v", o)
	}
}

func TestParseOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("DRAW_OFFER_TTL", "45s")
	t.Setenv("MATCH_DURABILITY", " Immediate ")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ROOM_RELAY", "true")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DrawOfferTTL != 45*time.Second || cfg.MatchDurability != "immediate" || cfg.StoreDriver != "memory" || !cfg.RoomRelay {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {"JWT_SECRET": ""},
		"bad durability":  {"MATCH_DURABILITY": "sometimes"},
		"bad bounds":      {"RATING_MIN": "3000", "RATING_MAX": "100"},
		"default outside": {"RATING_DEFAULT": "50"},
		"redis required":  {"REDIS_URL": ""},
		"bad duration":    {"SESSION_TTL": "soon"},
		"zero recover":    {"RECOVER_INTERVAL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setBase(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	setBase(t)
	t.Setenv("RATING_MAX", "many")
	_, err := Parse()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
