package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/reconcile"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"github.com/redis/go-redis/v9"
)

type conn struct {
	id, participant string
	mu              sync.Mutex
	frames          [][]byte
}

var connSeq int

func newConn(participant string) *conn {
	connSeq++
	return &conn{id: fmt.Sprintf("conn-%d", connSeq), participant: participant}
}

func (c *conn) ID() string            { return c.id }
func (c *conn) ParticipantID() string { return c.participant }
func (c *conn) Send(frame []byte) bool {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return true
}

// events drains and returns received event names.
func (c *conn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		name, _ := matchwire.Decode(f, nil)
		out = append(out, name)
	}
	c.frames = nil
	return out
}

// find decodes the most recent frame named event into out.
func (c *conn) find(event string, out any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if name, _ := matchwire.Decode(c.frames[i], nil); name == event {
			_, _ = matchwire.Decode(c.frames[i], out)
			return true
		}
	}
	return false
}

type harness struct {
	eng   *Engine
	cache sessioncache.Store
	st    *store.Memory
	hub   *room.Hub
	mr    *miniredis.Miniredis
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := sessioncache.NewRedis(rdb, time.Hour, 30*time.Second)
	st := store.NewMemory(1200)
	hub := room.NewHub()
	d := Deps{
		Cache:      cache,
		Rules:      rules.NewEngine(),
		Rooms:      hub,
		Reconciler: reconcile.New(cache, st),
		Progress:   st,
	}
	for _, m := range mutate {
		m(&d)
	}
	return &harness{eng: New(d), cache: cache, st: st, hub: hub, mr: mr}
}

func (h *harness) open(t *testing.T, kind domain.Kind, white, black string) string {
	t.Helper()
	ctx := context.Background()
	connSeq++
	id := fmt.Sprintf("match-%d", connSeq)
	if kind == domain.KindRated {
		for _, u := range []string{white, black} {
			if _, err := h.st.EnsureUser(ctx, u, u); err != nil {
				t.Fatalf("ensure user: %v", err)
			}
		}
	}
	rec := &domain.MatchRecord{ID: id, Kind: kind, WhiteID: white, BlackID: black, FEN: rules.InitialFEN}
	if err := h.st.CreateMatch(ctx, rec); err != nil {
		t.Fatalf("create match: %v", err)
	}
	s := &domain.Session{ID: id, Kind: kind, WhiteID: white, WhiteName: white, BlackID: black, BlackName: black}
	if err := h.eng.Open(ctx, s); err != nil {
		t.Fatalf("open: %v", err)
	}
	return id
}

// start readies both seats and drains the resulting frames.
func (h *harness) start(t *testing.T, id string, w, b *conn) {
	t.Helper()
	ctx := context.Background()
	if err := h.eng.MarkReady(ctx, Event{SessionID: id, ParticipantID: w.participant, Origin: w}); err != nil {
		t.Fatalf("ready white: %v", err)
	}
	if err := h.eng.MarkReady(ctx, Event{SessionID: id, ParticipantID: b.participant, Origin: b}); err != nil {
		t.Fatalf("ready black: %v", err)
	}
	w.events()
	b.events()
}

func (h *harness) move(t *testing.T, id string, c *conn, notation string) {
	t.Helper()
	if err := h.eng.SubmitMove(context.Background(), Event{SessionID: id, ParticipantID: c.participant, Notation: notation, Origin: c}); err != nil {
		t.Fatalf("move %s by %s: %v", notation, c.participant, err)
	}
}

func (h *harness) session(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, err := h.cache.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	return s
}

func equalNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// scriptedRules returns fixed results, for terminal paths that are tedious to reach on a real board.
type scriptedRules struct {
	results map[string]rules.Result
}

func (s scriptedRules) Apply(pos rules.Position, notation string) (rules.Result, error) {
	if r, ok := s.results[notation]; ok {
		return r, nil
	}
	return rules.NewEngine().Apply(pos, notation)
}
