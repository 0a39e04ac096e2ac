package domain

import "time"

// Result is the terminal tag recorded on a durable match.
type Result string

const (
	ResultNone      Result = ""
	ResultCheckmate Result = "CHECKMATE"
	ResultDraw      Result = "DRAW"
	ResultResign    Result = "RESIGN"
)

// MatchRecord is the permanent match row.
type MatchRecord struct {
	ID        string
	Kind      Kind
	WhiteID   string
	BlackID   string
	FEN       string
	MovesSAN  []string
	MovesUCI  []string
	Result    Result
	WinnerID  string
	PGN       string
	CreatedAt time.Time
	EndedAt   time.Time
}

// Finished reports whether the record already carries a final result.
func (m *MatchRecord) Finished() bool { return m != nil && m.Result != ResultNone }

// SeatOf reports which seat participantID holds in the durable row.
func (m *MatchRecord) SeatOf(participantID string) (Seat, bool) {
	switch {
	case participantID == "":
		return "", false
	case m.WhiteID == participantID:
		return White, true
	case m.BlackID == participantID:
		return Black, true
	}
	return "", false
}

// User is a permanent participant with a rating.
type User struct {
	ID        string
	Username  string
	Rating    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClampRating applies delta to rating and keeps the result within [min, max].
func ClampRating(rating, delta, min, max int) int {
	r := rating + delta
	if r > max {
		r = max
	}
	if r < min {
		r = min
	}
	return r
}
