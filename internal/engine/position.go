package engine

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Position is an immutable board state. The zero value is the standard starting arrangement.
type Position struct {
	pos     *nchess.Position
	inCheck bool
	ply     int
}

// Move is a single ply. Promotion is nchess.NoPieceType unless a pawn reaches the last rank.
type Move struct {
	From      nchess.Square
	To        nchess.Square
	Promotion nchess.PieceType
	Notation  string
	// Captured is set on resolved moves; NoPiece when nothing was taken.
	Captured nchess.Piece
}

func (m Move) String() string {
	if m.Notation != "" {
		return m.Notation
	}
	return m.UCI()
}

// UCI returns the coordinate form, e.g. e7e8q.
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != nchess.NoPieceType {
		s += strings.ToLower(m.Promotion.String())
	}
	return s
}

// PendingPromotion is a pawn move to the last rank that still needs a piece kind.
type PendingPromotion struct {
	From nchess.Square
	To   nchess.Square
}

// Start returns the standard starting position.
func Start() Position {
	return Position{pos: nchess.NewGame().Position()}
}

func (p Position) inner() *nchess.Position {
	if p.pos == nil {
		return nchess.NewGame().Position()
	}
	return p.pos
}

// Turn is the color to move.
func (p Position) Turn() nchess.Color { return p.inner().Turn() }

// Ply is the number of half-moves replayed to reach this position.
func (p Position) Ply() int { return p.ply }

// InCheck reports whether the side to move is in check.
func (p Position) InCheck() bool { return p.inCheck }

// FEN returns the Forsyth-Edwards encoding.
func (p Position) FEN() string { return p.inner().String() }

// Piece returns the piece on sq, or nchess.NoPiece.
func (p Position) Piece(sq nchess.Square) nchess.Piece {
	return p.inner().Board().Piece(sq)
}

// Grid returns the board indexed [rank][file]; Grid()[0][0] is a1.
func (p Position) Grid() [8][8]nchess.Piece {
	var grid [8][8]nchess.Piece
	board := p.inner().Board()
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			grid[rank][file] = board.Piece(nchess.NewSquare(file, rank))
		}
	}
	return grid
}

// Equal compares board, side to move, castling, en passant and clocks.
func (p Position) Equal(o Position) bool {
	return p.FEN() == o.FEN() && p.inCheck == o.inCheck
}

// KingCount counts kings of the given color.
func KingCount(p Position, c nchess.Color) int {
	n := 0
	for _, piece := range p.inner().Board().SquareMap() {
		if piece.Type() == nchess.King && piece.Color() == c {
			n++
		}
	}
	return n
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, fmt.Errorf("%w: %q", ErrBadSquare, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// ParsePromotion accepts q/r/b/n or the full piece name.
func ParsePromotion(s string) (nchess.PieceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q", "queen":
		return nchess.Queen, nil
	case "r", "rook":
		return nchess.Rook, nil
	case "b", "bishop":
		return nchess.Bishop, nil
	case "n", "knight":
		return nchess.Knight, nil
	default:
		return nchess.NoPieceType, fmt.Errorf("%w: %q", ErrInvalidPromotion, s)
	}
}

func promotable(pt nchess.PieceType) bool {
	switch pt {
	case nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight:
		return true
	}
	return false
}

func lastRank(c nchess.Color) nchess.Rank {
	if c == nchess.White {
		return nchess.Rank8
	}
	return nchess.Rank1
}

// Rows renders the board as eight strings, rank 8 first, using FEN letters and '.' for
// empty squares.
func (p Position) Rows() []string {
	grid := p.Grid()
	rows := make([]string, 0, 8)
	for rank := 7; rank >= 0; rank-- {
		var b [8]byte
		for file := 0; file < 8; file++ {
			b[file] = symbol(grid[rank][file])
		}
		rows = append(rows, string(b[:]))
	}
	return rows
}

func symbol(piece nchess.Piece) byte {
	var c byte
	switch piece.Type() {
	case nchess.King:
		c = 'k'
	case nchess.Queen:
		c = 'q'
	case nchess.Rook:
		c = 'r'
	case nchess.Bishop:
		c = 'b'
	case nchess.Knight:
		c = 'n'
	case nchess.Pawn:
		c = 'p'
	default:
		return '.'
	}
	if piece.Color() == nchess.White {
		c -= 'a' - 'A'
	}
	return c
}

// ColorName is "white", "black" or "".
func ColorName(c nchess.Color) string {
	switch c {
	case nchess.White:
		return "white"
	case nchess.Black:
		return "black"
	}
	return ""
}
