// Package builder constructs the match server's dependencies from config.
package builder

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/config"
	"github.com/park285/Cheese-Arena/internal/lobby"
	"github.com/park285/Cheese-Arena/internal/match"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/reconcile"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Redis    *redis.Client
	Cache    sessioncache.Store
	Store    store.Store
	Hub      *room.Hub
	Relay    *room.Relay
	Engine   *match.Engine
	Lobby    *lobby.Lobby
	Tokens   *auth.Tokens
	Messages *msgcat.Catalog

	closers []func() error
}

// New wires every component. Postgres is migrated before returning.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Messages = msgs

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.UserTokenTTL, cfg.GuestTokenTTL)
	if err != nil {
		return nil, err
	}
	d.Tokens = tokens

	// Redis (cache and/or relay)
	if cfg.RedisURL != "" && (cfg.CacheDriver == "redis" || cfg.RoomRelay) {
		opts, perr := parseRedisURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		rdb := redis.NewClient(opts)
		d.closers = append(d.closers, rdb.Close)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		d.Redis = rdb
	}

	switch cfg.CacheDriver {
	case "memory":
		d.Cache = sessioncache.NewMemory(cfg.SessionTTL, cfg.DrawOfferTTL)
	default:
		if d.Redis == nil {
			return nil, errors.New("REDIS_URL is required for the session cache")
		}
		d.Cache = sessioncache.NewRedis(d.Redis, cfg.SessionTTL, cfg.DrawOfferTTL)
	}

	switch cfg.StoreDriver {
	case "memory":
		d.Store = store.NewMemory(cfg.RatingDefault)
	default:
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := store.NewPostgres(db, cfg.RatingDefault)
		d.closers = append(d.closers, pg.Close)
		mctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = pg.Migrate(mctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		d.Store = pg
	}

	d.Hub = room.NewHub()
	if cfg.RoomRelay {
		d.Relay = room.NewRelay(d.Redis, "")
	}

	d.Engine = match.New(match.Deps{
		Cache:      d.Cache,
		Rules:      rules.NewEngine(),
		Rooms:      d.Hub,
		Reconciler: reconcile.New(d.Cache, d.Store),
		Progress:   d.Store,
		Messages:   msgs,
		Ratings: match.RatingRules{
			Increment:     cfg.RatingIncrement,
			ResignPenalty: cfg.RatingResignPenalty,
			Min:           cfg.RatingMin,
			Max:           cfg.RatingMax,
		},
		Durability: match.ParseDurability(cfg.MatchDurability),
	})
	d.Lobby = lobby.New(d.Store, d.Engine)

	obslog.L().Info("builder_ready",
		zap.String("cache_driver", cfg.CacheDriver),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("room_relay", cfg.RoomRelay),
		zap.String("durability", cfg.MatchDurability),
	)
	ok = true
	return d, nil
}

// StartRelay subscribes the hub to the cross-instance channel when enabled.
func (d *Deps) StartRelay(ctx context.Context) error {
	if d.Relay == nil {
		return nil
	}
	return d.Relay.Start(ctx, d.Hub)
}

// Close releases connections in reverse construction order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:     net.JoinHostPort(host, portStr),
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}
