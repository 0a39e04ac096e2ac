package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
)

func setup(t *testing.T) (*Reconciler, *sessioncache.Memory, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	cache := sessioncache.NewMemory(time.Hour, 30*time.Second)
	st := store.NewMemory(1200)
	if err := st.CreateMatch(ctx, &domain.MatchRecord{ID: "m1", Kind: domain.KindGuest, FEN: "startpos"}); err != nil {
		t.Fatalf("create match: %v", err)
	}
	s := &domain.Session{
		ID: "m1", Kind: domain.KindGuest, WhiteID: "w", BlackID: "b",
		FEN: "final-fen", MovesSAN: []string{"e4"}, MovesUCI: []string{"e2e4"},
		Phase: domain.PhaseDraw, Result: domain.ResultDraw,
	}
	if err := cache.Create(ctx, s); err != nil {
		t.Fatalf("cache create: %v", err)
	}
	if err := cache.SetDrawOffer(ctx, "m1", sessioncache.DrawOffer{OfferedBy: "w"}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	return New(cache, st), cache, st
}

func TestReconcile_WritesOnceAndEvicts(t *testing.T) {
	ctx := context.Background()
	r, cache, st := setup(t)

	rep, err := r.Reconcile(ctx, Request{SessionID: "m1", Method: "agreement"})
	if err != nil || !rep.Reconciled {
		t.Fatalf("reconcile: %+v %v", rep, err)
	}
	rec, _ := st.GetMatch(ctx, "m1")
	if rec.Result != domain.ResultDraw || rec.FEN != "final-fen" || len(rec.MovesUCI) != 1 {
		t.Fatalf("unexpected durable record: %+v", rec)
	}
	if s, _ := cache.Get(ctx, "m1"); s != nil {
		t.Fatalf("cache entry survived")
	}
	if o, _ := cache.GetDrawOffer(ctx, "m1"); o != nil {
		t.Fatalf("draw offer survived")
	}

	rep, err = r.Reconcile(ctx, Request{SessionID: "m1"})
	if err != nil || rep.Reconciled {
		t.Fatalf("second reconcile should be a no-op: %+v %v", rep, err)
	}
	if st.FinalizeWrites() != 1 {
		t.Fatalf("durable writes = %d", st.FinalizeWrites())
	}
}

func TestReconcile_FailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	r, cache, st := setup(t)
	boom := errors.New("db down")
	st.FailFinalize(func(store.Final) error { return boom })

	if _, err := r.Reconcile(ctx, Request{SessionID: "m1"}); !errors.Is(err, boom) {
		t.Fatalf("want wrapped db error, got %v", err)
	}
	if s, _ := cache.Get(ctx, "m1"); s == nil {
		t.Fatalf("snapshot must survive a failed write")
	}

	st.FailFinalize(nil)
	rep, err := r.Reconcile(ctx, Request{SessionID: "m1"})
	if err != nil || !rep.Reconciled {
		t.Fatalf("retry: %+v %v", rep, err)
	}
	if s, _ := cache.Get(ctx, "m1"); s != nil {
		t.Fatalf("cache entry survived retry")
	}
}

func TestReconcile_RequestOverridesSnapshot(t *testing.T) {
	ctx := context.Background()
	r, _, st := setup(t)
	rep, err := r.Reconcile(ctx, Request{SessionID: "m1", Result: domain.ResultResign, WinnerID: "b"})
	if err != nil || !rep.Reconciled {
		t.Fatalf("reconcile: %v", err)
	}
	rec, _ := st.GetMatch(ctx, "m1")
	if rec.Result != domain.ResultResign || rec.WinnerID != "b" {
		t.Fatalf("unexpected: %+v", rec)
	}
}
