// Package lobby creates matches and fills their open seat.
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/match"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrNotFound      = errors.New("match not found")
	ErrFull          = errors.New("match is full")
	ErrAlreadyJoined = errors.New("already seated in this match")
	ErrKindMismatch  = errors.New("match kind does not accept this identity")
)

type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

// Sessions is the part of the match engine the lobby drives.
type Sessions interface {
	Open(ctx context.Context, s *domain.Session) error
	Seat(ctx context.Context, sessionID string, seat domain.Seat, participantID, name string) error
}

type Lobby struct {
	store    store.Store
	sessions Sessions
	now      func() time.Time
	newID    func() string
}

func New(st store.Store, sessions Sessions) *Lobby {
	return &Lobby{store: st, sessions: sessions, now: time.Now, newID: uuid.NewString}
}

// Seated is a match record plus the seat the caller ended up in.
type Seated struct {
	Match *domain.MatchRecord
	Seat  domain.Seat
}

// Create stores a new match with the creator seated and opens its live session.
func (l *Lobby) Create(ctx context.Context, creator auth.Identity, side ColorChoice) (*Seated, error) {
	if strings.TrimSpace(creator.ID) == "" {
		return nil, ErrInvalidArgs
	}
	if err := l.ensureUser(ctx, creator); err != nil {
		return nil, err
	}
	seat := resolveSeat(side)
	rec := &domain.MatchRecord{
		ID:        l.newID(),
		Kind:      creator.Kind(),
		FEN:       rules.InitialFEN,
		MovesSAN:  []string{},
		MovesUCI:  []string{},
		CreatedAt: l.now(),
	}
	s := &domain.Session{ID: rec.ID, Kind: rec.Kind}
	if seat == domain.White {
		rec.WhiteID = creator.ID
		s.WhiteID, s.WhiteName = creator.ID, creator.DisplayName()
	} else {
		rec.BlackID = creator.ID
		s.BlackID, s.BlackName = creator.ID, creator.DisplayName()
	}
	if err := l.store.CreateMatch(ctx, rec); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	if err := l.sessions.Open(ctx, s); err != nil {
		return nil, err
	}
	obslog.L().Info("lobby_create",
		zap.String("match_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("creator_id", creator.ID),
		zap.String("seat", string(seat)),
	)
	return &Seated{Match: rec, Seat: seat}, nil
}

// Join seats joiner in the open seat of match id.
func (l *Lobby) Join(ctx context.Context, id string, joiner auth.Identity) (*Seated, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(joiner.ID) == "" {
		return nil, ErrInvalidArgs
	}
	rec, err := l.store.GetMatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Kind != joiner.Kind() {
		return nil, ErrKindMismatch
	}
	if held, ok := rec.SeatOf(joiner.ID); ok {
		return l.reseat(ctx, rec, held, joiner)
	}
	if rec.Finished() {
		return nil, ErrFull
	}
	var seat domain.Seat
	switch {
	case rec.WhiteID == "":
		seat = domain.White
	case rec.BlackID == "":
		seat = domain.Black
	default:
		return nil, ErrFull
	}
	if err := l.ensureUser(ctx, joiner); err != nil {
		return nil, err
	}
	// 동시 참가: 좌석은 store의 조건부 UPDATE가 확정한다
	if err := l.store.AssignSeat(ctx, id, seat, joiner.ID); err != nil {
		if errors.Is(err, store.ErrSeatTaken) {
			return nil, ErrFull
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("assign seat: %w", err)
	}
	if err := l.sessions.Seat(ctx, id, seat, joiner.ID, joiner.DisplayName()); err != nil && !errors.Is(err, match.ErrAlreadySeated) {
		// 영속 좌석은 남음. 재시도 시 reseat가 캐시 좌석을 복구
		obslog.L().Warn("lobby_join_error", zap.String("match_id", id), zap.String("user_id", joiner.ID), zap.Error(err))
		return nil, seatError(err)
	}
	if seat == domain.White {
		rec.WhiteID = joiner.ID
	} else {
		rec.BlackID = joiner.ID
	}
	obslog.L().Info("lobby_join", zap.String("match_id", id), zap.String("user_id", joiner.ID), zap.String("seat", string(seat)))
	return &Seated{Match: rec, Seat: seat}, nil
}

// reseat handles a joiner the durable row already names. The live seat is
// written again when an earlier Join stopped between the two writes.
func (l *Lobby) reseat(ctx context.Context, rec *domain.MatchRecord, seat domain.Seat, joiner auth.Identity) (*Seated, error) {
	if rec.Finished() {
		return nil, ErrAlreadyJoined
	}
	err := l.sessions.Seat(ctx, rec.ID, seat, joiner.ID, joiner.DisplayName())
	switch {
	case err == nil:
		obslog.L().Info("lobby_join_repaired", zap.String("match_id", rec.ID), zap.String("user_id", joiner.ID), zap.String("seat", string(seat)))
		return &Seated{Match: rec, Seat: seat}, nil
	case errors.Is(err, match.ErrAlreadySeated), errors.Is(err, match.ErrNotActive):
		return nil, ErrAlreadyJoined
	default:
		return nil, seatError(err)
	}
}

func seatError(err error) error {
	switch {
	case errors.Is(err, match.ErrSessionNotFound):
		return ErrNotFound
	case errors.Is(err, match.ErrSeatTaken), errors.Is(err, match.ErrNotActive):
		return ErrFull
	}
	return err
}

// Get returns the durable record of match id.
func (l *Lobby) Get(ctx context.Context, id string) (*domain.MatchRecord, error) {
	rec, err := l.store.GetMatch(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (l *Lobby) ensureUser(ctx context.Context, id auth.Identity) error {
	if id.Guest {
		return nil
	}
	if _, err := l.store.EnsureUser(ctx, id.ID, id.DisplayName()); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func resolveSeat(side ColorChoice) domain.Seat {
	switch side {
	case ColorWhite:
		return domain.White
	case ColorBlack:
		return domain.Black
	default: // random using crypto/rand
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
			return domain.White
		}
		return domain.Black
	}
}
