// Package store is the durable side of a match: the permanent match row and
// user ratings.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
)

const DefaultRating = 1200

var (
	ErrDuplicateMatch = errors.New("match already exists")
	ErrNotFound       = errors.New("record not found")
	ErrSeatTaken      = errors.New("seat already taken")
)

// RatingChange is a clamped winner/loser adjustment. Both sides are clamped
// to [Min, Max] independently.
type RatingChange struct {
	WinnerID string
	LoserID  string
	Gain     int
	Loss     int
	Min      int
	Max      int
}

// Final is everything the reconciler writes when a match ends.
type Final struct {
	MatchID   string
	Kind      domain.Kind
	WhiteID   string
	WhiteName string
	BlackID   string
	BlackName string
	FEN       string
	MovesSAN  []string
	MovesUCI  []string
	Result    domain.Result
	WinnerID  string
	Method    string
	StartedAt time.Time
	EndedAt   time.Time
	Ratings   *RatingChange
}

// Outcome reports what Finalize stored. Applied is false when the match had
// already been finalized and nothing changed.
type Outcome struct {
	Applied bool
	Match   *domain.MatchRecord
	Ratings map[string]int
}

// Store is the durable store contract. Getters return (nil, nil) when missing.
type Store interface {
	CreateMatch(ctx context.Context, m *domain.MatchRecord) error
	AssignSeat(ctx context.Context, matchID string, seat domain.Seat, participantID string) error
	GetMatch(ctx context.Context, id string) (*domain.MatchRecord, error)
	SaveProgress(ctx context.Context, matchID, fen string, movesSAN, movesUCI []string) error
	Finalize(ctx context.Context, f Final) (Outcome, error)

	GetUser(ctx context.Context, id string) (*domain.User, error)
	EnsureUser(ctx context.Context, id, username string) (*domain.User, error)
}
