package domain

import "time"

// Phase is the lifecycle position of a live session.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING_FOR_READY"
	PhaseActive    Phase = "ACTIVE"
	PhaseCheckmate Phase = "CHECKMATE"
	PhaseDraw      Phase = "DRAW"
	PhaseResigned  Phase = "RESIGNED"
)

// Terminal reports whether p is absorbing.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCheckmate, PhaseDraw, PhaseResigned:
		return true
	default:
		return false
	}
}

// rank orders phases so transitions can be checked for monotonicity.
func (p Phase) rank() int {
	switch p {
	case PhaseWaiting:
		return 0
	case PhaseActive:
		return 1
	case PhaseCheckmate, PhaseDraw, PhaseResigned:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from p to next is a forward transition.
func (p Phase) CanAdvanceTo(next Phase) bool {
	if p.Terminal() {
		return false
	}
	return next.rank() > p.rank()
}

// Seat identifies one side of the board.
type Seat string

const (
	White Seat = "white"
	Black Seat = "black"
)

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	if s == White {
		return Black
	}
	return White
}

// Kind says whose identities a session seats and whether it is rated.
type Kind string

const (
	KindRated Kind = "rated"
	KindGuest Kind = "guest"
)

// Session is the live, mutable record kept in the session cache while a match runs.
type Session struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	WhiteID    string    `json:"white_id,omitempty"`
	WhiteName  string    `json:"white_name,omitempty"`
	BlackID    string    `json:"black_id,omitempty"`
	BlackName  string    `json:"black_name,omitempty"`
	FEN        string    `json:"fen"`
	MovesSAN   []string  `json:"moves_san"`
	MovesUCI   []string  `json:"moves_uci"`
	InCheck    bool      `json:"in_check,omitempty"`
	Phase      Phase     `json:"phase"`
	WhiteReady bool      `json:"white_ready"`
	BlackReady bool      `json:"black_ready"`
	Result     Result    `json:"result,omitempty"`
	WinnerID   string    `json:"winner_id,omitempty"`
	EndReason  string    `json:"end_reason,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SeatOf returns the seat held by participantID.
func (s *Session) SeatOf(participantID string) (Seat, bool) {
	if s == nil || participantID == "" {
		return "", false
	}
	switch participantID {
	case s.WhiteID:
		return White, true
	case s.BlackID:
		return Black, true
	}
	return "", false
}

// Holder returns the participant seated at seat ("" when empty).
func (s *Session) Holder(seat Seat) string {
	if seat == White {
		return s.WhiteID
	}
	return s.BlackID
}

// NameOf returns the display name for seat, falling back to the participant id.
func (s *Session) NameOf(seat Seat) string {
	name, id := s.BlackName, s.BlackID
	if seat == White {
		name, id = s.WhiteName, s.WhiteID
	}
	if name != "" {
		return name
	}
	return id
}

// SetReady marks seat ready and reports whether the flag changed.
func (s *Session) SetReady(seat Seat) bool {
	if seat == White {
		if s.WhiteReady {
			return false
		}
		s.WhiteReady = true
		return true
	}
	if s.BlackReady {
		return false
	}
	s.BlackReady = true
	return true
}

// BothReady reports whether both seats are filled and ready.
func (s *Session) BothReady() bool {
	return s.WhiteID != "" && s.BlackID != "" && s.WhiteReady && s.BlackReady
}
