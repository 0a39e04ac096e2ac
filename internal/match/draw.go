package match

import (
	"context"
	"fmt"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"go.uber.org/zap"
)

// OfferDraw records a short-lived offer and tells the opponent.
// An offer replaces whatever offer was pending.
func (e *Engine) OfferDraw(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, seat domain.Seat) error {
		if s.Phase != domain.PhaseActive {
			return ErrNotActive
		}
		offer := sessioncache.DrawOffer{OfferedBy: ev.ParticipantID, OfferedAt: e.now()}
		if err := e.cache.SetDrawOffer(ctx, s.ID, offer); err != nil {
			return fmt.Errorf("save draw offer: %w", err)
		}
		obslog.L().Info("match_draw_offer", zap.String("session_id", s.ID), zap.String("offered_by", ev.ParticipantID))
		e.rooms.SendTo(s.ID, s.Holder(seat.Opponent()), matchwire.MustEncode(matchwire.EventDrawOffered, matchwire.Message{
			Message: e.msgs.Text("match.draw_offered", nil),
		}))
		return nil
	})
	return e.done(ev, matchwire.EventDrawOffer, err)
}

// AcceptDraw ends the match as a draw when the opponent's offer is still live.
func (e *Engine) AcceptDraw(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, _ domain.Seat) error {
		if s.Phase != domain.PhaseActive {
			return ErrNotActive
		}
		offer, err := e.pendingOffer(ctx, s.ID)
		if err != nil {
			return err
		}
		if offer.OfferedBy == ev.ParticipantID {
			return ErrCannotAcceptOwnOffer
		}
		if err := advance(s, domain.PhaseDraw); err != nil {
			return err
		}
		s.Result, s.WinnerID, s.EndReason = domain.ResultDraw, "", reasonAgreement
		s.UpdatedAt = e.now()
		if err := e.cache.Save(ctx, s); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if err := e.cache.DeleteDrawOffer(ctx, s.ID); err != nil {
			obslog.L().Warn("match_draw_offer_delete_error", zap.String("session_id", s.ID), zap.Error(err))
		}
		obslog.L().Info("match_draw_accept", zap.String("session_id", s.ID), zap.String("accepted_by", ev.ParticipantID))
		return e.finish(ctx, s)
	})
	return e.done(ev, matchwire.EventAcceptDraw, err)
}

// RejectDraw clears the opponent's offer and tells the offerer.
func (e *Engine) RejectDraw(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, _ domain.Seat) error {
		if s.Phase != domain.PhaseActive {
			return ErrNotActive
		}
		offer, err := e.pendingOffer(ctx, s.ID)
		if err != nil {
			return err
		}
		if offer.OfferedBy == ev.ParticipantID {
			return ErrCannotRejectOwnOffer
		}
		if err := e.cache.DeleteDrawOffer(ctx, s.ID); err != nil {
			return fmt.Errorf("delete draw offer: %w", err)
		}
		obslog.L().Info("match_draw_reject", zap.String("session_id", s.ID), zap.String("rejected_by", ev.ParticipantID))
		e.rooms.SendTo(s.ID, offer.OfferedBy, matchwire.MustEncode(matchwire.EventDrawRejected, matchwire.Message{
			Message: e.msgs.Text("match.draw_rejected", nil),
		}))
		return nil
	})
	return e.done(ev, matchwire.EventRejectDraw, err)
}

// State replies to the caller with the live snapshot; used after reconnects.
func (e *Engine) State(ctx context.Context, ev Event) error {
	err := e.withSession(ctx, ev, func(s *domain.Session, _ domain.Seat) error {
		offer, err := e.cache.GetDrawOffer(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("load draw offer: %w", err)
		}
		e.reply(ev, matchwire.MustEncode(matchwire.EventState, StateOf(s, offer)))
		return nil
	})
	return e.done(ev, matchwire.EventState, err)
}

func (e *Engine) pendingOffer(ctx context.Context, sessionID string) (*sessioncache.DrawOffer, error) {
	offer, err := e.cache.GetDrawOffer(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load draw offer: %w", err)
	}
	if offer == nil {
		return nil, ErrNoPendingOffer
	}
	return offer, nil
}

// StateOf renders a session for the wire.
func StateOf(s *domain.Session, offer *sessioncache.DrawOffer) matchwire.State {
	side, _ := rules.SideToMove(s.FEN)
	st := matchwire.State{
		SessionID:  s.ID,
		Phase:      string(s.Phase),
		Position:   s.FEN,
		SideToMove: string(side),
		White:      s.WhiteID,
		Black:      s.BlackID,
		WhiteReady: s.WhiteReady,
		BlackReady: s.BlackReady,
		Moves:      append([]string{}, s.MovesSAN...),
		Result:     string(s.Result),
		WinnerID:   s.WinnerID,
	}
	if offer != nil {
		st.DrawOfferBy = offer.OfferedBy
	}
	return st
}
