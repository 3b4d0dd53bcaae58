package engine

import (
	"errors"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/require"
)

func sq(t *testing.T, s string) nchess.Square {
	t.Helper()
	v, err := ParseSquare(s)
	require.NoError(t, err)
	return v
}

func replay(t *testing.T, moves ...string) Position {
	t.Helper()
	pos, _, err := Replay(moves)
	require.NoError(t, err)
	return pos
}

func TestLegalDestinations_StartPosition(t *testing.T) {
	pos := Start()
	require.Equal(t, []nchess.Square{sq(t, "e3"), sq(t, "e4")}, LegalDestinations(pos, sq(t, "e2")))
	require.ElementsMatch(t, []nchess.Square{sq(t, "f3"), sq(t, "h3")}, LegalDestinations(pos, sq(t, "g1")))
	require.Empty(t, LegalDestinations(pos, sq(t, "e7")), "black piece while white to move")
	require.Empty(t, LegalDestinations(pos, sq(t, "e4")), "empty square")
	require.Empty(t, LegalDestinations(pos, sq(t, "a1")), "blocked rook")
}

func TestApply_IllegalReasons(t *testing.T) {
	pos := Start()
	cases := []struct {
		name     string
		from, to string
		reason   string
	}{
		{"empty source", "e4", "e5", ReasonEmptySource},
		{"wrong color", "e7", "e5", ReasonWrongColor},
		{"unreachable", "e2", "e5", ReasonUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Apply(pos, Move{From: sq(t, tc.from), To: sq(t, tc.to)})
			require.ErrorIs(t, err, ErrIllegalMove)
			var ime *IllegalMoveError
			require.True(t, errors.As(err, &ime))
			require.Equal(t, tc.reason, ime.Reason)
			require.True(t, next.Equal(pos), "position must be unchanged on failure")
		})
	}
}

func TestApply_LeavesKingInCheck(t *testing.T) {
	pos := replay(t, "d4", "e6", "c4", "Bb4")
	require.Equal(t, Check, Classify(pos))

	_, err := Apply(pos, Move{From: sq(t, "a2"), To: sq(t, "a3")})
	var ime *IllegalMoveError
	require.True(t, errors.As(err, &ime))
	require.Equal(t, ReasonKingInCheck, ime.Reason)

	next, err := Apply(pos, Move{From: sq(t, "c1"), To: sq(t, "d2")})
	require.NoError(t, err)
	require.Equal(t, None, Classify(next))
}

func TestClassify_Sequences(t *testing.T) {
	require.Equal(t, None, Classify(replay(t, "e4", "e5", "Nf3")))
	require.Equal(t, Check, Classify(replay(t, "e4", "f6", "Qh5")))

	mate := replay(t, "f3", "e5", "g4", "Qh4")
	require.Equal(t, Checkmate, Classify(mate))
	require.Empty(t, LegalDestinations(mate, sq(t, "e1")))

	stalemate := replay(t,
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "h4", "Rah6", "Qxc7", "f6",
		"Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7", "Qxc8", "Kg6", "Qe6",
	)
	require.Equal(t, Stalemate, Classify(stalemate))
}

func TestApply_AfterCheckmateRefused(t *testing.T) {
	mate := replay(t, "f3", "e5", "g4", "Qh4")
	_, err := Apply(mate, Move{From: sq(t, "a2"), To: sq(t, "a3")})
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestReplay_MatchesIncrementalApply(t *testing.T) {
	notations := []string{"e4", "c5", "Nf3", "d6", "d4", "cxd4", "Nxd4", "Nf6", "Nc3", "a6", "Be2", "e5", "Nb3", "Be7", "O-O", "O-O"}
	replayed, moves, err := Replay(notations)
	require.NoError(t, err)
	require.Len(t, moves, len(notations))

	pos := Start()
	for _, mv := range moves {
		pos, err = Apply(pos, Move{From: mv.From, To: mv.To, Promotion: mv.Promotion})
		require.NoError(t, err)
		require.Equal(t, 1, KingCount(pos, nchess.White))
		require.Equal(t, 1, KingCount(pos, nchess.Black))
	}
	require.True(t, replayed.Equal(pos))
	require.Equal(t, len(notations), replayed.Ply())
	require.Equal(t, "O-O", moves[len(moves)-1].Notation)
}

func TestReplay_ReportsFailingIndex(t *testing.T) {
	_, _, err := Replay([]string{"e4", "e5", "Ke3"})
	var re *ReplayError
	require.True(t, errors.As(err, &re))
	require.Equal(t, 2, re.Index)
	require.Equal(t, "Ke3", re.Notation)
}

func TestDecode_AcceptsUCIFallback(t *testing.T) {
	pos := Start()
	mv, err := Decode(pos, "g1f3")
	require.NoError(t, err)
	resolved, err := Resolve(pos, mv)
	require.NoError(t, err)
	require.Equal(t, "Nf3", resolved.Notation)
	require.Equal(t, "g1f3", resolved.UCI())

	_, err = Decode(pos, "zz")
	require.ErrorIs(t, err, ErrBadNotation)
}

func TestReplay_CoordinateHistory(t *testing.T) {
	pos, moves, err := Replay([]string{"e2e4", "e7e5", "g1f3"})
	require.NoError(t, err)
	require.Equal(t, []string{"e4", "e5", "Nf3"}, []string{moves[0].Notation, moves[1].Notation, moves[2].Notation})
	require.True(t, pos.Equal(replay(t, "e4", "e5", "Nf3")))

	mv, err := Decode(Start(), "G1F3")
	require.NoError(t, err)
	require.Equal(t, sq(t, "g1"), mv.From)
	require.Equal(t, sq(t, "f3"), mv.To)

	_, _, err = Replay([]string{"e2e4", "e7e5", "g1f4"})
	var re *ReplayError
	require.True(t, errors.As(err, &re))
	require.Equal(t, 2, re.Index)
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestOpening_CoordinateHistoryMatchesSAN(t *testing.T) {
	sanCode, sanTitle := Opening([]string{"e4", "e5", "Nf3"})
	uciCode, uciTitle := Opening([]string{"e2e4", "e7e5", "g1f3"})
	require.Equal(t, sanCode, uciCode)
	require.Equal(t, sanTitle, uciTitle)
}

// a4 b5 axb5 a6 bxa6 Bb7 axb7 Nc6 leaves a white pawn on b7 with b8 empty.
func promotionPosition(t *testing.T) Position {
	return replay(t, "a4", "b5", "axb5", "a6", "bxa6", "Bb7", "axb7", "Nc6")
}

func TestApply_PromotionRequired(t *testing.T) {
	pos := promotionPosition(t)
	require.True(t, NeedsPromotion(pos, sq(t, "b7"), sq(t, "b8")))

	next, err := Apply(pos, Move{From: sq(t, "b7"), To: sq(t, "b8")})
	require.ErrorIs(t, err, ErrPromotionRequired)
	require.True(t, next.Equal(pos))

	mv, err := Decode(pos, "b7b8")
	require.NoError(t, err)
	_, err = Apply(pos, mv)
	require.ErrorIs(t, err, ErrPromotionRequired)
	mv, err = Decode(pos, "b7b8q")
	require.NoError(t, err)
	require.Equal(t, nchess.Queen, mv.Promotion)

	_, err = Apply(Start(), Move{From: sq(t, "e2"), To: sq(t, "e4"), Promotion: nchess.Queen})
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestDrafter_PendingPromotionLifecycle(t *testing.T) {
	pos := promotionPosition(t)
	d := NewDrafter()

	draft, err := d.Apply(pos, Move{From: sq(t, "b7"), To: sq(t, "b8")})
	require.NoError(t, err)
	require.True(t, draft.Pending)
	require.True(t, draft.Position.Equal(pos))
	pending, ok := d.Pending()
	require.True(t, ok)
	require.Equal(t, sq(t, "b8"), pending.To)

	_, err = d.Apply(pos, Move{From: sq(t, "e2"), To: sq(t, "e4")})
	require.ErrorIs(t, err, ErrPromotionPending)

	_, err = d.Promote(pos, nchess.King)
	require.ErrorIs(t, err, ErrInvalidPromotion)
	_, ok = d.Pending()
	require.True(t, ok, "invalid kind keeps the pending entry")

	draft, err = d.Promote(pos, nchess.Queen)
	require.NoError(t, err)
	require.False(t, draft.Pending)
	require.True(t, strings.HasPrefix(draft.Move.Notation, "b8=Q"), draft.Move.Notation)
	require.Equal(t, nchess.Queen, draft.Position.Piece(sq(t, "b8")).Type())
	require.Equal(t, pos.Ply()+1, draft.Position.Ply())
	_, ok = d.Pending()
	require.False(t, ok)

	_, err = d.Promote(pos, nchess.Queen)
	require.ErrorIs(t, err, ErrNoPromotionPending)
}

func TestDrafter_Cancel(t *testing.T) {
	pos := promotionPosition(t)
	d := NewDrafter()
	_, err := d.Apply(pos, Move{From: sq(t, "b7"), To: sq(t, "a8")})
	require.NoError(t, err)
	require.True(t, d.Cancel())
	require.False(t, d.Cancel())

	draft, err := d.Apply(pos, Move{From: sq(t, "e2"), To: sq(t, "e4")})
	require.NoError(t, err)
	require.Equal(t, "e4", draft.Move.Notation)
}

func TestDrafter_SameMoveWithPieceFinalizes(t *testing.T) {
	pos := promotionPosition(t)
	d := NewDrafter()
	_, err := d.Apply(pos, Move{From: sq(t, "b7"), To: sq(t, "a8")})
	require.NoError(t, err)
	draft, err := d.Apply(pos, Move{From: sq(t, "b7"), To: sq(t, "a8"), Promotion: nchess.Knight})
	require.NoError(t, err)
	require.Equal(t, nchess.Knight, draft.Position.Piece(sq(t, "a8")).Type())
}

func TestParsePromotion(t *testing.T) {
	for in, want := range map[string]nchess.PieceType{"q": nchess.Queen, "Rook": nchess.Rook, "b": nchess.Bishop, "knight": nchess.Knight} {
		got, err := ParsePromotion(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParsePromotion("king")
	require.ErrorIs(t, err, ErrInvalidPromotion)
}

func TestGrid(t *testing.T) {
	grid := Start().Grid()
	require.Equal(t, nchess.King, grid[nchess.Rank1][nchess.FileE].Type())
	require.Equal(t, nchess.Black, grid[nchess.Rank8][nchess.FileD].Color())
	require.Equal(t, nchess.NoPiece, grid[nchess.Rank4][nchess.FileE])
}

func TestOpening(t *testing.T) {
	code, title := Opening([]string{"e4", "e5", "Nf3"})
	require.NotEmpty(t, code)
	require.NotEmpty(t, title)
	code, _ = Opening([]string{"e4", "Ke3"})
	require.Empty(t, code)
}

func TestRows(t *testing.T) {
	rows := replay(t, "e4").Rows()
	require.Len(t, rows, 8)
	require.Equal(t, "rnbqkbnr", rows[0])
	require.Equal(t, "....P...", rows[4])
	require.Equal(t, "PPPP.PPP", rows[6])
	require.Equal(t, "black", ColorName(replay(t, "e4").Turn()))
}

func TestCaptured(t *testing.T) {
	_, moves, err := Replay([]string{"e4", "d5", "exd5", "Qxd5", "Nc3", "Qa5"})
	require.NoError(t, err)
	c := Captured(moves)
	require.Equal(t, []nchess.PieceType{nchess.Pawn}, c.ByWhite)
	require.Equal(t, []nchess.PieceType{nchess.Pawn}, c.ByBlack)
	require.Equal(t, 2, c.Total())
	require.Equal(t, nchess.BlackPawn, moves[2].Captured)
	require.Equal(t, nchess.NoPiece, moves[4].Captured)

	// en passant takes the pawn beside the destination square
	_, moves, err = Replay([]string{"e4", "a6", "e5", "d5", "exd6"})
	require.NoError(t, err)
	require.Equal(t, nchess.BlackPawn, moves[4].Captured)
	require.Equal(t, "pawn", PieceName(Captured(moves).ByWhite[0]))
}

func TestPositionAt(t *testing.T) {
	notations := []string{"e4", "e5", "Nf3", "Nc6"}
	final, moves, err := Replay(notations)
	require.NoError(t, err)

	start, err := PositionAt(moves, 0)
	require.NoError(t, err)
	require.True(t, start.Equal(Start()))

	mid, err := PositionAt(moves, 2)
	require.NoError(t, err)
	require.True(t, mid.Equal(replay(t, "e4", "e5")))
	require.Equal(t, 2, mid.Ply())

	end, err := PositionAt(moves, len(moves))
	require.NoError(t, err)
	require.True(t, end.Equal(final))

	_, err = PositionAt(moves, 5)
	require.ErrorIs(t, err, ErrPlyOutOfRange)
	_, err = PositionAt(moves, -1)
	require.ErrorIs(t, err, ErrPlyOutOfRange)
}
