package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis keeps sessions as JSON blobs with a sliding TTL.
type Redis struct {
	rdb        *redis.Client
	sessionTTL time.Duration
	drawTTL    time.Duration
}

func NewRedis(rdb *redis.Client, sessionTTL, drawTTL time.Duration) *Redis {
	return &Redis{
		rdb:        rdb,
		sessionTTL: ttlOr(sessionTTL, DefaultSessionTTL),
		drawTTL:    ttlOr(drawTTL, DefaultDrawTTL),
	}
}

func (r *Redis) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &s, nil
}

func (r *Redis) Create(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session create: empty id")
	}
	s.Version = 1
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.ID), raw, r.sessionTTL).Result()
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *Redis) Save(ctx context.Context, s *domain.Session) error {
	if s == nil {
		return fmt.Errorf("session save: nil")
	}
	key := sessionKey(s.ID)
	next := s.Version + 1
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur domain.Session
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		// 버전 CAS: 읽은 뒤 다른 쓰기가 끼면 TxFailedErr
		if cur.Version != s.Version {
			return ErrVersionConflict
		}
		out := *s
		out.Version = next
		newRaw, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newRaw, r.sessionTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("session save: %w", err)
	}
	s.Version = next
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

// IDs walks the keyspace with SCAN.
func (r *Redis) IDs(ctx context.Context) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, sessionPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("session scan: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, sessionPrefix))
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (r *Redis) SetDrawOffer(ctx context.Context, id string, offer DrawOffer) error {
	raw, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, drawKey(id), raw, r.drawTTL).Err(); err != nil {
		return fmt.Errorf("draw offer set: %w", err)
	}
	return nil
}

func (r *Redis) GetDrawOffer(ctx context.Context, id string) (*DrawOffer, error) {
	raw, err := r.rdb.Get(ctx, drawKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("draw offer get: %w", err)
	}
	var o DrawOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("draw offer decode: %w", err)
	}
	return &o, nil
}

func (r *Redis) DeleteDrawOffer(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, drawKey(id)).Err(); err != nil {
		return fmt.Errorf("draw offer delete: %w", err)
	}
	return nil
}
