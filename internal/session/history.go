package session

import (
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/reconcile"
	"github.com/park285/chess-ledger-sync/pkg/gameview"
)

// PositionAt rebuilds the board after ply accepted moves. Ply 0 is the initial position.
func (s *Session) PositionAt(ply int) (gameview.Frame, error) {
	st := s.rec.Current()
	pos, err := engine.PositionAt(st.Moves, ply)
	if err != nil {
		return gameview.Frame{}, err
	}
	f := gameview.Frame{
		Ply:      ply,
		FEN:      pos.FEN(),
		Turn:     engine.ColorName(pos.Turn()),
		Terminal: engine.Classify(pos).String(),
		Board:    pos.Rows(),
	}
	if ply > 0 {
		f.Move = st.Moves[ply-1].Notation
	}
	return f, nil
}

// stats derives captures and clock figures. The clock runs from the record's start time
// until now, or until the game was first seen finished.
func (s *Session) stats(st reconcile.State) gameview.Stats {
	c := engine.Captured(st.Moves)
	out := gameview.Stats{
		TotalMoves:      len(st.Moves),
		Captures:        c.Total(),
		CapturedByWhite: pieceNames(c.ByWhite),
		CapturedByBlack: pieceNames(c.ByBlack),
		Elapsed:         gameview.FormatClock(0),
	}
	if st.Record == nil || st.Record.StartTime.IsZero() {
		return out
	}
	end := s.now()
	if at := s.finishedAt.Load(); at != 0 {
		end = time.Unix(0, at)
	}
	elapsed := max(end.Sub(st.Record.StartTime), 0)
	out.ElapsedSeconds = int64(elapsed / time.Second)
	out.Elapsed = gameview.FormatClock(elapsed)
	out.AvgMoveSeconds = gameview.AverageMove(elapsed, out.TotalMoves)
	return out
}

func pieceNames(kinds []nchess.PieceType) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, engine.PieceName(k))
	}
	return out
}
