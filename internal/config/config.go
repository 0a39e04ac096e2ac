package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/park285/Cheese-Arena/internal/obslog"
)

type AppConfig struct {
	WSAddr   string `env:"WS_ADDR" envDefault:":7000"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":7001"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	CacheDriver string `env:"CACHE_DRIVER" envDefault:"redis"`

	JWTSecret     string        `env:"JWT_SECRET"`
	GuestTokenTTL time.Duration `env:"GUEST_TOKEN_TTL" envDefault:"12h"`
	UserTokenTTL  time.Duration `env:"USER_TOKEN_TTL" envDefault:"24h"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	DrawOfferTTL time.Duration `env:"DRAW_OFFER_TTL" envDefault:"30s"`

	RatingDefault       int `env:"RATING_DEFAULT" envDefault:"1200"`
	RatingIncrement     int `env:"RATING_INCREMENT" envDefault:"10"`
	RatingResignPenalty int `env:"RATING_RESIGN_PENALTY" envDefault:"20"`
	RatingMin           int `env:"RATING_MIN" envDefault:"100"`
	RatingMax           int `env:"RATING_MAX" envDefault:"3000"`

	MatchDurability string        `env:"MATCH_DURABILITY" envDefault:"reconcile"`
	RecoverInterval time.Duration `env:"RECOVER_INTERVAL" envDefault:"1m"`
	RoomRelay       bool          `env:"ROOM_RELAY" envDefault:"false"`
	MessagesDir     string        `env:"MESSAGES_DIR"`

	Log LogConfig
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"legacy"`
	ToConsole  bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile     bool   `env:"LOG_TO_FILE" envDefault:"false"`
	File       string `env:"LOG_FILE" envDefault:"logs/match-server.log"`
	Caller     bool   `env:"LOG_CALLER" envDefault:"false"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// Options converts the LOG_* keys for obslog.Init.
func (l LogConfig) Options() obslog.Options {
	return obslog.Options{
		Level:      l.Level,
		Format:     l.Format,
		ToConsole:  l.ToConsole,
		ToFile:     l.ToFile,
		File:       l.File,
		Caller:     l.Caller,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.CacheDriver = strings.ToLower(strings.TrimSpace(c.CacheDriver))
	c.MatchDurability = strings.ToLower(strings.TrimSpace(c.MatchDurability))
	c.MessagesDir = strings.TrimSpace(c.MessagesDir)
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.CacheDriver {
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for CACHE_DRIVER=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported CACHE_DRIVER: %s", c.CacheDriver)
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.RoomRelay && c.RedisURL == "" {
		return errors.New("ROOM_RELAY requires REDIS_URL")
	}
	switch c.MatchDurability {
	case "reconcile", "immediate":
	default:
		return fmt.Errorf("unsupported MATCH_DURABILITY: %s", c.MatchDurability)
	}
	if c.SessionTTL <= 0 || c.DrawOfferTTL <= 0 {
		return errors.New("SESSION_TTL and DRAW_OFFER_TTL must be positive")
	}
	if c.GuestTokenTTL <= 0 || c.UserTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.RecoverInterval <= 0 {
		return errors.New("RECOVER_INTERVAL must be positive")
	}
	if c.RatingMin < 0 || c.RatingMin >= c.RatingMax {
		return fmt.Errorf("invalid rating bounds: [%d, %d]", c.RatingMin, c.RatingMax)
	}
	if c.RatingDefault < c.RatingMin || c.RatingDefault > c.RatingMax {
		return fmt.Errorf("RATING_DEFAULT %d outside [%d, %d]", c.RatingDefault, c.RatingMin, c.RatingMax)
	}
	if c.RatingIncrement < 0 || c.RatingResignPenalty < 0 {
		return errors.New("rating deltas must not be negative")
	}
	return nil
}
