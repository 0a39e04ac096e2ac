// Package match is the live session state machine: ready, moves, resignation
// and the draw sub-protocol, linearized per session.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/reconcile"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"go.uber.org/zap"
)

type Rules interface {
	Apply(pos rules.Position, notation string) (rules.Result, error)
}

type Rooms interface {
	Join(sessionID string, m room.Member)
	LeaveAll(sessionID string)
	Broadcast(sessionID string, frame []byte)
	SendTo(sessionID, participantID string, frame []byte)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (reconcile.Report, error)
}

// ProgressWriter receives every accepted move under ImmediateWrite.
type ProgressWriter interface {
	SaveProgress(ctx context.Context, matchID, fen string, movesSAN, movesUCI []string) error
}

type Deps struct {
	Cache      sessioncache.Store
	Rules      Rules
	Rooms      Rooms
	Reconciler Reconciler
	Progress   ProgressWriter
	Messages   *msgcat.Catalog
	Ratings    RatingRules
	Durability Durability
}

type Engine struct {
	cache      sessioncache.Store
	rules      Rules
	rooms      Rooms
	recon      Reconciler
	progress   ProgressWriter
	msgs       *msgcat.Catalog
	ratings    RatingRules
	durability Durability
	locks      *keyedMutex
	now        func() time.Time
}

func New(d Deps) *Engine {
	if d.Messages == nil {
		d.Messages = msgcat.MustDefault()
	}
	if d.Ratings == (RatingRules{}) {
		d.Ratings = DefaultRatingRules()
	}
	if d.Durability == "" {
		d.Durability = ReconcileAtEnd
	}
	return &Engine{
		cache:      d.Cache,
		rules:      d.Rules,
		rooms:      d.Rooms,
		recon:      d.Reconciler,
		progress:   d.Progress,
		msgs:       d.Messages,
		ratings:    d.Ratings,
		durability: d.Durability,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Event is one inbound connection event. Origin is the connection that sent
// it; it is joined to the session room once the sender is identified.
type Event struct {
	SessionID     string
	ParticipantID string
	Notation      string
	Origin        room.Member
}

// Open puts a new session into the cache in WAITING_FOR_READY.
func (e *Engine) Open(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("open session: empty id")
	}
	now := e.now()
	s.Phase = domain.PhaseWaiting
	s.WhiteReady, s.BlackReady = false, false
	if strings.TrimSpace(s.FEN) == "" {
		s.FEN = rules.InitialFEN
	}
	if s.MovesSAN == nil {
		s.MovesSAN = []string{}
	}
	if s.MovesUCI == nil {
		s.MovesUCI = []string{}
	}
	s.CreatedAt, s.UpdatedAt = now, now
	if err := e.cache.Create(ctx, s); err != nil {
		return fmt.Errorf("open session %s: %w", s.ID, err)
	}
	obslog.L().Info("match_open",
		zap.String("session_id", s.ID),
		zap.String("kind", string(s.Kind)),
		zap.String("white_id", s.WhiteID),
		zap.String("black_id", s.BlackID),
	)
	return nil
}

// Seat fills an empty seat while the session still waits for ready.
func (e *Engine) Seat(ctx context.Context, sessionID string, seat domain.Seat, participantID, name string) error {
	unlock := e.locks.Lock(sessionID)
	defer unlock()
	s, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Phase != domain.PhaseWaiting {
		return ErrNotActive
	}
	if s.Holder(seat) == participantID {
		return ErrAlreadySeated
	}
	if s.Holder(seat) != "" || s.Holder(seat.Opponent()) == participantID {
		return ErrSeatTaken
	}
	if seat == domain.White {
		s.WhiteID, s.WhiteName = participantID, name
	} else {
		s.BlackID, s.BlackName = participantID, name
	}
	s.UpdatedAt = e.now()
	if err := e.cache.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	obslog.L().Info("match_seat", zap.String("session_id", s.ID), zap.String("seat", string(seat)), zap.String("participant_id", participantID))
	return nil
}

// Snapshot reads the live record and pending offer under the session lock.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*domain.Session, *sessioncache.DrawOffer, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()
	s, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	offer, err := e.cache.GetDrawOffer(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load draw offer: %w", err)
	}
	return s, offer, nil
}

// MarkReady flags the caller's seat. The second ready starts the match.
func (e *Engine) MarkReady(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, seat domain.Seat) error {
		ack := matchwire.MustEncode(matchwire.EventReady, matchwire.Message{Message: e.msgs.Text("match.ready", nil)})
		if s.Phase == domain.PhaseActive || !s.SetReady(seat) {
			e.reply(ev, ack)
			return nil
		}
		started := s.BothReady()
		if started {
			if err := advance(s, domain.PhaseActive); err != nil {
				return err
			}
		}
		s.UpdatedAt = e.now()
		if err := e.cache.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		obslog.L().Info("match_ready",
			zap.String("session_id", s.ID),
			zap.String("participant_id", ev.ParticipantID),
			zap.String("seat", string(seat)),
			zap.Bool("started", started),
		)
		e.reply(ev, ack)
		if started {
			e.rooms.Broadcast(s.ID, matchwire.MustEncode(matchwire.EventMatchStarted, matchwire.MatchStarted{
				Message:   e.msgs.Text("match.started", nil),
				SessionID: s.ID,
				White:     s.WhiteID,
				Black:     s.BlackID,
				Position:  s.FEN,
			}))
		}
		return nil
	})
	return e.done(ev, matchwire.EventReady, err)
}

// SubmitMove validates turn and legality, applies the move and ends the
// match when the position is terminal.
func (e *Engine) SubmitMove(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, seat domain.Seat) error {
		if s.Phase != domain.PhaseActive {
			return ErrNotActive
		}
		// 턴 검증
		turn, err := rules.SideToMove(s.FEN)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPosition, err)
		}
		if turn != seat {
			return ErrOutOfTurn
		}
		// 재구성 + 적용
		res, err := e.rules.Apply(rules.Position{FEN: s.FEN, MovesUCI: s.MovesUCI}, ev.Notation)
		if err != nil {
			return rulesError(err, ev.Notation)
		}

		s.FEN = res.FEN
		s.MovesSAN = append(s.MovesSAN, res.SAN)
		s.MovesUCI = append(s.MovesUCI, res.UCI)
		s.InCheck = res.InCheck
		s.UpdatedAt = e.now()
		switch {
		case res.Terminal == rules.TerminalCheckmate:
			s.Phase, s.Result, s.WinnerID, s.EndReason = domain.PhaseCheckmate, domain.ResultCheckmate, s.Holder(seat), reasonCheckmate
		case res.Terminal.IsDraw():
			s.Phase, s.Result, s.WinnerID, s.EndReason = domain.PhaseDraw, domain.ResultDraw, "", string(res.Terminal)
		}
		if err := e.cache.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		obslog.L().Info("match_move",
			zap.String("session_id", s.ID),
			zap.String("participant_id", ev.ParticipantID),
			zap.String("uci", res.UCI),
			zap.String("san", res.SAN),
			zap.Int("ply", len(s.MovesUCI)),
			zap.String("phase", string(s.Phase)),
		)

		if s.Phase.Terminal() {
			return e.finish(ctx, s)
		}
		e.writeProgress(ctx, s)
		e.rooms.Broadcast(s.ID, e.moveFrame(s))
		return nil
	})
	return e.done(ev, matchwire.EventMove, err)
}

// Resign ends the match in the opponent's favour.
func (e *Engine) Resign(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, seat domain.Seat) error {
		if s.Phase != domain.PhaseActive {
			return ErrNotActive
		}
		if err := advance(s, domain.PhaseResigned); err != nil {
			return err
		}
		s.Result = domain.ResultResign
		s.WinnerID = s.Holder(seat.Opponent())
		s.EndReason = reasonResignation
		s.UpdatedAt = e.now()
		if err := e.cache.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		obslog.L().Info("match_resign",
			zap.String("session_id", s.ID),
			zap.String("resigner", ev.ParticipantID),
			zap.String("winner_id", s.WinnerID),
		)
		return e.finish(ctx, s)
	})
	return e.done(ev, matchwire.EventResign, err)
}

func (e *Engine) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}
	s, err := e.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// withSession runs fn under the session lock after identity checks.
func (e *Engine) withSession(ctx context.Context, ev Event, fn func(*domain.Session, domain.Seat) error) error {
	if strings.TrimSpace(ev.SessionID) == "" {
		return ErrSessionNotFound
	}
	unlock := e.locks.Lock(ev.SessionID)
	defer unlock()
	s, err := e.load(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	seat, ok := s.SeatOf(ev.ParticipantID)
	if !ok {
		return ErrNotAParticipant
	}
	if ev.Origin != nil {
		e.rooms.Join(s.ID, ev.Origin)
	}
	if s.Phase.Terminal() {
		// an earlier end did not reconcile; finish it, then reject the event
		if err := e.finish(ctx, s); err != nil {
			return err
		}
		return ErrNotActive
	}
	return fn(s, seat)
}

func (e *Engine) reply(ev Event, frame []byte) {
	if ev.Origin != nil {
		ev.Origin.Send(frame)
		return
	}
	e.rooms.SendTo(ev.SessionID, ev.ParticipantID, frame)
}

func (e *Engine) done(ev Event, name string, err error) error {
	if err == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("event", name),
		zap.String("session_id", ev.SessionID),
		zap.String("participant_id", ev.ParticipantID),
		zap.String("kind", string(KindOf(err))),
		zap.Error(err),
	}
	if Recoverable(err) {
		obslog.L().Debug("match_event_rejected", fields...)
	} else {
		obslog.L().Error("match_event_failed", fields...)
	}
	return err
}

func (e *Engine) writeProgress(ctx context.Context, s *domain.Session) {
	if e.progress == nil || PolicyFor(s.Kind, e.durability).Durability != ImmediateWrite {
		return
	}
	if err := e.progress.SaveProgress(ctx, s.ID, s.FEN, s.MovesSAN, s.MovesUCI); err != nil {
		// the cache stays authoritative; the final snapshot is written at reconcile
		obslog.L().Error("match_progress_write_error", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func advance(s *domain.Session, next domain.Phase) error {
	if !s.Phase.CanAdvanceTo(next) {
		return ErrNotActive
	}
	s.Phase = next
	return nil
}

func rulesError(err error, notation string) error {
	switch {
	case errors.Is(err, rules.ErrIllegalMove):
		return fmt.Errorf("%w: %s", ErrIllegalMove, strings.TrimSpace(notation))
	case errors.Is(err, rules.ErrMalformedPosition):
		return fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	default:
		return fmt.Errorf("rules engine: %w", err)
	}
}
