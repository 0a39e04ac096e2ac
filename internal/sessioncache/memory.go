package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/park285/Cheese-Arena/internal/domain"
)

// Memory is the in-process twin of Redis. Values are stored encoded so
// callers never share a record with the cache.
type Memory struct {
	mu         sync.Mutex
	c          *gocache.Cache
	sessionTTL time.Duration
	drawTTL    time.Duration
}

func NewMemory(sessionTTL, drawTTL time.Duration) *Memory {
	sessionTTL = ttlOr(sessionTTL, DefaultSessionTTL)
	return &Memory{
		c:          gocache.New(sessionTTL, time.Minute),
		sessionTTL: sessionTTL,
		drawTTL:    ttlOr(drawTTL, DefaultDrawTTL),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	v, ok := m.c.Get(sessionKey(id))
	if !ok {
		return nil, nil
	}
	var s domain.Session
	if err := json.Unmarshal(v.([]byte), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Memory) Create(_ context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session create: empty id")
	}
	s.Version = 1
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.c.Add(sessionKey(s.ID), raw, m.sessionTTL); err != nil {
		return ErrExists
	}
	return nil
}

func (m *Memory) Save(_ context.Context, s *domain.Session) error {
	if s == nil {
		return fmt.Errorf("session save: nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.ID)
	v, ok := m.c.Get(key)
	if !ok {
		return ErrNotFound
	}
	var cur domain.Session
	if err := json.Unmarshal(v.([]byte), &cur); err != nil {
		return err
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	out := *s
	out.Version++
	raw, err := json.Marshal(&out)
	if err != nil {
		return err
	}
	m.c.Set(key, raw, m.sessionTTL)
	s.Version = out.Version
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.c.Delete(sessionKey(id))
	return nil
}

func (m *Memory) IDs(_ context.Context) ([]string, error) {
	items := m.c.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		if id, ok := strings.CutPrefix(k, sessionPrefix); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) SetDrawOffer(_ context.Context, id string, offer DrawOffer) error {
	m.c.Set(drawKey(id), offer, m.drawTTL)
	return nil
}

func (m *Memory) GetDrawOffer(_ context.Context, id string) (*DrawOffer, error) {
	v, ok := m.c.Get(drawKey(id))
	if !ok {
		return nil, nil
	}
	o := v.(DrawOffer)
	return &o, nil
}

func (m *Memory) DeleteDrawOffer(_ context.Context, id string) error {
	m.c.Delete(drawKey(id))
	return nil
}
