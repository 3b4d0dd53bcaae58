package engine

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

var ErrPlyOutOfRange = errors.New("ply out of range")

// Captures lists taken pieces in move order, grouped by the side that took them.
type Captures struct {
	ByWhite []nchess.PieceType
	ByBlack []nchess.PieceType
}

func (c Captures) Total() int { return len(c.ByWhite) + len(c.ByBlack) }

// Captured collects the pieces taken across resolved moves.
func Captured(moves []Move) Captures {
	var c Captures
	for _, mv := range moves {
		if mv.Captured == nchess.NoPiece {
			continue
		}
		if mv.Captured.Color() == nchess.Black {
			c.ByWhite = append(c.ByWhite, mv.Captured.Type())
		} else {
			c.ByBlack = append(c.ByBlack, mv.Captured.Type())
		}
	}
	return c
}

// PositionAt rebuilds the position after the first ply moves. Ply 0 is the start.
func PositionAt(moves []Move, ply int) (Position, error) {
	if ply < 0 || ply > len(moves) {
		return Position{}, fmt.Errorf("%w: %d of %d", ErrPlyOutOfRange, ply, len(moves))
	}
	pos := Start()
	for i, mv := range moves[:ply] {
		next, err := Apply(pos, Move{From: mv.From, To: mv.To, Promotion: mv.Promotion})
		if err != nil {
			return Position{}, &ReplayError{Index: i, Notation: mv.String(), Err: err}
		}
		pos = next
	}
	return pos, nil
}

// PieceName is the lowercase English name of a piece kind.
func PieceName(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "king"
	case nchess.Queen:
		return "queen"
	case nchess.Rook:
		return "rook"
	case nchess.Bishop:
		return "bishop"
	case nchess.Knight:
		return "knight"
	case nchess.Pawn:
		return "pawn"
	}
	return ""
}
