package rules

import (
	"errors"
	"testing"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/stretchr/testify/require"
)

func play(t *testing.T, moves ...string) Position {
	t.Helper()
	e := NewEngine()
	pos := Position{FEN: InitialFEN}
	for _, mv := range moves {
		res, err := e.Apply(pos, mv)
		require.NoError(t, err, "apply %s", mv)
		pos = Position{FEN: res.FEN, MovesUCI: append(pos.MovesUCI, res.UCI)}
	}
	return pos
}

func TestApply_UCIAndSAN(t *testing.T) {
	e := NewEngine()
	res, err := e.Apply(Position{FEN: InitialFEN}, "e2e4")
	require.NoError(t, err)
	require.Equal(t, "e4", res.SAN)
	require.Equal(t, "e2e4", res.UCI)
	require.Equal(t, domain.Black, res.SideToMove)
	require.Equal(t, TerminalNone, res.Terminal)

	res2, err := e.Apply(Position{FEN: res.FEN, MovesUCI: []string{res.UCI}}, "Nc6")
	require.NoError(t, err)
	require.Equal(t, "b8c6", res2.UCI)
	require.Equal(t, domain.White, res2.SideToMove)
}

func TestApply_Illegal(t *testing.T) {
	e := NewEngine()
	for _, mv := range []string{"", "invalid", "e2e5", "e7e5"} {
		_, err := e.Apply(Position{FEN: InitialFEN}, mv)
		if !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%q: expected ErrIllegalMove, got %v", mv, err)
		}
	}
}

func TestApply_Checkmate(t *testing.T) {
	pos := play(t, "f2f3", "e7e5", "g2g4")
	res, err := NewEngine().Apply(pos, "d8h4")
	require.NoError(t, err)
	require.Equal(t, TerminalCheckmate, res.Terminal)
	require.True(t, res.InCheck)
	require.Equal(t, "Qh4#", res.SAN)
	require.False(t, res.Terminal.IsDraw())
}

func TestApply_MalformedPosition(t *testing.T) {
	e := NewEngine()
	_, err := e.Apply(Position{FEN: "not a fen"}, "e2e4")
	require.ErrorIs(t, err, ErrMalformedPosition)

	// history says e2e4 was played but the board is still the start
	_, err = e.Apply(Position{FEN: InitialFEN, MovesUCI: []string{"e2e4"}}, "e7e5")
	require.ErrorIs(t, err, ErrMalformedPosition)

	_, err = e.Apply(Position{FEN: InitialFEN, MovesUCI: []string{"zz99"}}, "e2e4")
	require.ErrorIs(t, err, ErrMalformedPosition)
}

func TestApply_RepetitionEndsGame(t *testing.T) {
	pos := play(t, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1")
	res, err := NewEngine().Apply(pos, "f6g8")
	require.NoError(t, err)
	require.Equal(t, TerminalRepetition, res.Terminal)
	require.True(t, res.Terminal.IsDraw())
}

func TestSideToMove(t *testing.T) {
	s, err := SideToMove(InitialFEN)
	require.NoError(t, err)
	require.Equal(t, domain.White, s)

	s, err = SideToMove("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	require.NoError(t, err)
	require.Equal(t, domain.Black, s)

	_, err = SideToMove("8/8/8 x")
	require.ErrorIs(t, err, ErrMalformedPosition)
}
