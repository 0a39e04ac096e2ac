package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/reconcile"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"go.uber.org/zap"
)

const (
	reasonCheckmate   = "checkmate"
	reasonResignation = "resignation"
	reasonAgreement   = "agreement"
)

var drawReasons = map[string]string{
	string(rules.TerminalStalemate):            "stalemate",
	string(rules.TerminalInsufficientMaterial): "insufficient material",
	string(rules.TerminalRepetition):           "repetition",
	string(rules.TerminalMoveRule):             "the move rule",
}

// finish reconciles a terminal snapshot already saved in the cache, then
// tells the room and clears it. On failure the snapshot stays for a retry.
func (e *Engine) finish(ctx context.Context, s *domain.Session) error {
	req := reconcile.Request{
		SessionID: s.ID,
		Result:    s.Result,
		WinnerID:  s.WinnerID,
		Method:    s.EndReason,
	}
	if PolicyFor(s.Kind, e.durability).Rated && s.WinnerID != "" {
		if winnerSeat, ok := s.SeatOf(s.WinnerID); ok {
			req.Ratings = e.ratings.Change(s.WinnerID, s.Holder(winnerSeat.Opponent()), s.Result == domain.ResultResign)
		}
	}
	rep, err := e.recon.Reconcile(ctx, req)
	if err != nil {
		obslog.L().Error("match_end_pending",
			zap.String("session_id", s.ID),
			zap.String("result", string(s.Result)),
			zap.Error(err),
		)
		return fmt.Errorf("reconcile %s: %w", s.ID, err)
	}

	for _, frame := range e.endFrames(s, rep.Outcome.Ratings) {
		e.rooms.Broadcast(s.ID, frame)
	}
	e.rooms.LeaveAll(s.ID)
	obslog.L().Info("match_end",
		zap.String("session_id", s.ID),
		zap.String("result", string(s.Result)),
		zap.String("reason", s.EndReason),
		zap.String("winner_id", s.WinnerID),
		zap.Bool("reconciled", rep.Reconciled),
		zap.Any("ratings", rep.Outcome.Ratings),
	)
	return nil
}

// endFrames are the frames every member sees when s ends, in send order.
func (e *Engine) endFrames(s *domain.Session, ratings map[string]int) [][]byte {
	ended := matchwire.MatchEnded{Result: string(s.Result), WinnerID: s.WinnerID}
	if len(ratings) > 0 {
		ended.Ratings = ratings
	}
	var frames [][]byte

	switch s.Result {
	case domain.ResultCheckmate:
		winner, _ := s.SeatOf(s.WinnerID)
		frames = append(frames, e.moveFrame(s))
		ended.Message = e.msgs.Text("match.ended_checkmate", map[string]string{"Winner": s.NameOf(winner)})

	case domain.ResultResign:
		winner, _ := s.SeatOf(s.WinnerID)
		loser := winner.Opponent()
		resigned := matchwire.Resigned{
			Message:       e.msgs.Text("match.resigned", map[string]string{"Name": s.NameOf(loser)}),
			ByParticipant: s.Holder(loser),
		}
		if r, ok := ratings[s.Holder(loser)]; ok {
			resigned.NewRating = &r
		}
		frames = append(frames, matchwire.MustEncode(matchwire.EventResigned, resigned))
		ended.Message = e.msgs.Text("match.ended_resign", map[string]string{"Loser": s.NameOf(loser), "Winner": s.NameOf(winner)})

	case domain.ResultDraw:
		if s.EndReason == reasonAgreement {
			frames = append(frames, matchwire.MustEncode(matchwire.EventDrawAccepted, matchwire.Message{Message: e.msgs.Text("match.draw_accepted", nil)}))
			ended.Message = e.msgs.Text("match.ended_draw", nil)
		} else {
			frames = append(frames, e.moveFrame(s))
			if reason, ok := drawReasons[s.EndReason]; ok {
				ended.Message = e.msgs.Text("match.ended_draw_reason", map[string]string{"Reason": reason})
			} else {
				ended.Message = e.msgs.Text("match.ended_draw", nil)
			}
		}
	}
	return append(frames, matchwire.MustEncode(matchwire.EventMatchEnded, ended))
}

// moveFrame describes the last accepted move of s.
func (e *Engine) moveFrame(s *domain.Session) []byte {
	var san, uci string
	if n := len(s.MovesSAN); n > 0 {
		san = s.MovesSAN[n-1]
	}
	if n := len(s.MovesUCI); n > 0 {
		uci = s.MovesUCI[n-1]
	}
	side, _ := rules.SideToMove(s.FEN)
	return matchwire.MustEncode(matchwire.EventMoveApplied, matchwire.MoveApplied{
		Notation:   san,
		SAN:        san,
		UCI:        uci,
		Position:   s.FEN,
		SideToMove: string(side),
		InCheck:    s.InCheck || strings.HasSuffix(san, "#"),
		By:         s.Holder(side.Opponent()),
	})
}
