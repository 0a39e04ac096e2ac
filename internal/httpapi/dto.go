package httpapi

import (
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
)

type envelope struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type GuestRequest struct {
	Name string `json:"name" validate:"omitempty,min=2,max=32,printascii"`
}

type GuestResponse struct {
	Token         string    `json:"token"`
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type CreateMatchRequest struct {
	Side string `json:"side" validate:"omitempty,oneof=white black random"`
}

type MatchView struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	WhiteID   string     `json:"whiteId,omitempty"`
	BlackID   string     `json:"blackId,omitempty"`
	Seat      string     `json:"seat,omitempty"`
	Position  string     `json:"position"`
	Moves     []string   `json:"moves"`
	Result    string     `json:"result,omitempty"`
	WinnerID  string     `json:"winnerId,omitempty"`
	PGN       string     `json:"pgn,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func viewOf(m *domain.MatchRecord, seat domain.Seat) MatchView {
	v := MatchView{
		ID:        m.ID,
		Kind:      string(m.Kind),
		WhiteID:   m.WhiteID,
		BlackID:   m.BlackID,
		Seat:      string(seat),
		Position:  m.FEN,
		Moves:     append([]string{}, m.MovesSAN...),
		Result:    string(m.Result),
		WinnerID:  m.WinnerID,
		PGN:       m.PGN,
		CreatedAt: m.CreatedAt,
	}
	if !m.EndedAt.IsZero() {
		t := m.EndedAt
		v.EndedAt = &t
	}
	return v
}
