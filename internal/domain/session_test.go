package domain

import "testing"

func TestPhaseTransitions(t *testing.T) {
	cases := []struct {
		from, to Phase
		ok       bool
	}{
		{PhaseWaiting, PhaseActive, true},
		{PhaseWaiting, PhaseResigned, true},
		{PhaseActive, PhaseCheckmate, true},
		{PhaseActive, PhaseDraw, true},
		{PhaseActive, PhaseWaiting, false},
		{PhaseActive, PhaseActive, false},
		{PhaseCheckmate, PhaseDraw, false},
		{PhaseDraw, PhaseActive, false},
		{PhaseResigned, PhaseResigned, false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvanceTo(c.to); got != c.ok {
			t.Fatalf("%s -> %s: got %v want %v", c.from, c.to, got, c.ok)
		}
	}
	if PhaseActive.Terminal() || !PhaseDraw.Terminal() {
		t.Fatalf("terminal classification wrong")
	}
}

func TestSessionSeats(t *testing.T) {
	s := &Session{WhiteID: "w", WhiteName: "Alice", BlackID: "b"}
	if seat, ok := s.SeatOf("b"); !ok || seat != Black {
		t.Fatalf("seat of b: %v %v", seat, ok)
	}
	if _, ok := s.SeatOf(""); ok {
		t.Fatalf("empty id must not match an empty seat")
	}
	if s.NameOf(White) != "Alice" || s.NameOf(Black) != "b" {
		t.Fatalf("names: %q %q", s.NameOf(White), s.NameOf(Black))
	}
	if !s.SetReady(White) || s.SetReady(White) {
		t.Fatalf("ready must report a change exactly once")
	}
	if s.BothReady() {
		t.Fatalf("black not ready yet")
	}
	s.SetReady(Black)
	if !s.BothReady() {
		t.Fatalf("both ready")
	}
}

func TestClampRating(t *testing.T) {
	if got := ClampRating(2995, 10, 100, 3000); got != 3000 {
		t.Fatalf("upper clamp: %d", got)
	}
	if got := ClampRating(110, -20, 100, 3000); got != 100 {
		t.Fatalf("lower clamp: %d", got)
	}
	if got := ClampRating(1200, -10, 100, 3000); got != 1190 {
		t.Fatalf("plain: %d", got)
	}
}
