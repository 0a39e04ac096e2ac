// Package rules adapts corentings/chess to the move-application contract the
// match engine consumes: replay a position, apply one move, report terminal state.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/Cheese-Arena/internal/domain"
)

// InitialFEN is the standard starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrMalformedPosition = errors.New("malformed position")
)

// Terminal is the end condition reported after a move.
type Terminal string

const (
	TerminalNone                 Terminal = ""
	TerminalCheckmate            Terminal = "checkmate"
	TerminalStalemate            Terminal = "stalemate"
	TerminalInsufficientMaterial Terminal = "insufficient_material"
	TerminalRepetition           Terminal = "repetition"
	TerminalMoveRule             Terminal = "move_rule"
)

// IsDraw reports whether t ends the game without a winner.
func (t Terminal) IsDraw() bool {
	switch t {
	case TerminalStalemate, TerminalInsufficientMaterial, TerminalRepetition, TerminalMoveRule:
		return true
	default:
		return false
	}
}

// Position is a serialized board plus the UCI history that produced it.
type Position struct {
	FEN      string
	MovesUCI []string
}

// Result describes the position after an accepted move.
type Result struct {
	FEN        string
	SAN        string
	UCI        string
	SideToMove domain.Seat
	InCheck    bool
	Terminal   Terminal
}

// Engine is stateless; the zero value is ready to use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Apply validates notation against pos and returns the resulting position.
// UCI is tried first, then SAN.
func (e *Engine) Apply(pos Position, notation string) (Result, error) {
	game, err := replay(pos)
	if err != nil {
		return Result{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Result{}, fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}

	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Result{}, fmt.Errorf("%w: empty notation", ErrIllegalMove)
	}
	before := game.Position()
	mv, derr := nchess.UCINotation{}.Decode(before, strings.ToLower(raw))
	if derr != nil {
		mv, derr = nchess.AlgebraicNotation{}.Decode(before, raw)
		if derr != nil {
			return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
		}
	}
	if err := game.Move(mv, nil); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	played := lastMove(game)
	if played == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}

	return Result{
		FEN:        game.FEN(),
		SAN:        nchess.AlgebraicNotation{}.Encode(before, played),
		UCI:        strings.ToLower(played.String()),
		SideToMove: seatFrom(game.Position().Turn()),
		InCheck:    played.HasTag(nchess.Check),
		Terminal:   terminalOf(game),
	}, nil
}

// SideToMove reads the active colour field of fen.
func SideToMove(fen string) (domain.Seat, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return domain.White, nil
	}
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedPosition, fen)
	}
	switch fields[1] {
	case "w":
		return domain.White, nil
	case "b":
		return domain.Black, nil
	default:
		return "", fmt.Errorf("%w: side field %q", ErrMalformedPosition, fields[1])
	}
}

// replay rebuilds the game from the start so repetition history is available,
// then checks it against the stored FEN.
func replay(pos Position) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, raw := range pos.MovesUCI {
		mv, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedPosition, raw, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("%w: apply %s: %v", ErrMalformedPosition, raw, err)
		}
	}
	want := strings.TrimSpace(pos.FEN)
	if want == "" || want == "startpos" {
		if len(pos.MovesUCI) == 0 {
			return game, nil
		}
		return nil, fmt.Errorf("%w: missing fen", ErrMalformedPosition)
	}
	if !samePlacement(want, game.FEN()) {
		return nil, fmt.Errorf("%w: fen does not match move history", ErrMalformedPosition)
	}
	return game, nil
}

// samePlacement compares piece placement and side to move only; clocks and
// en-passant encoding differ between producers.
func samePlacement(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 2 || len(fb) < 2 {
		return false
	}
	return fa[0] == fb[0] && fa[1] == fb[1]
}

func terminalOf(game *nchess.Game) Terminal {
	switch game.Method() {
	case nchess.Checkmate:
		return TerminalCheckmate
	case nchess.Stalemate:
		return TerminalStalemate
	case nchess.InsufficientMaterial:
		return TerminalInsufficientMaterial
	case nchess.FivefoldRepetition, nchess.ThreefoldRepetition:
		return TerminalRepetition
	case nchess.SeventyFiveMoveRule, nchess.FiftyMoveRule:
		return TerminalMoveRule
	}
	if game.Outcome() == nchess.Draw {
		return TerminalStalemate
	}
	// threefold is claimable, not automatic, in the library; treat it as final
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition {
			return TerminalRepetition
		}
	}
	return TerminalNone
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func seatFrom(c nchess.Color) domain.Seat {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}
