package engine

import nchess "github.com/corentings/chess/v2"

// pseudoReachable reports whether the piece on from could move to to by its movement
// pattern alone, ignoring whether the own king is left attacked. It only separates
// "leaves king in check" from "not reachable" in error reasons.
func pseudoReachable(board *nchess.Board, from, to nchess.Square) bool {
	if from == to {
		return false
	}
	piece := board.Piece(from)
	if piece == nchess.NoPiece {
		return false
	}
	if target := board.Piece(to); target != nchess.NoPiece && target.Color() == piece.Color() {
		return false
	}
	df := int(to.File()) - int(from.File())
	dr := int(to.Rank()) - int(from.Rank())

	switch piece.Type() {
	case nchess.Knight:
		return (abs(df) == 1 && abs(dr) == 2) || (abs(df) == 2 && abs(dr) == 1)
	case nchess.King:
		if abs(df) <= 1 && abs(dr) <= 1 {
			return true
		}
		// castling shape; legality is left to the move generator
		return dr == 0 && abs(df) == 2 && clearPath(board, from, to)
	case nchess.Rook:
		return (df == 0 || dr == 0) && clearPath(board, from, to)
	case nchess.Bishop:
		return abs(df) == abs(dr) && clearPath(board, from, to)
	case nchess.Queen:
		return (df == 0 || dr == 0 || abs(df) == abs(dr)) && clearPath(board, from, to)
	case nchess.Pawn:
		dir, home := 1, nchess.Rank2
		if piece.Color() == nchess.Black {
			dir, home = -1, nchess.Rank7
		}
		target := board.Piece(to)
		switch {
		case df == 0 && dr == dir:
			return target == nchess.NoPiece
		case df == 0 && dr == 2*dir && from.Rank() == home:
			return target == nchess.NoPiece && clearPath(board, from, to)
		case abs(df) == 1 && dr == dir:
			return target != nchess.NoPiece
		}
	}
	return false
}

// clearPath reports whether every square strictly between from and to is empty.
// Callers guarantee from and to share a line or diagonal.
func clearPath(board *nchess.Board, from, to nchess.Square) bool {
	sf, sr := sign(int(to.File())-int(from.File())), sign(int(to.Rank())-int(from.Rank()))
	f, r := int(from.File())+sf, int(from.Rank())+sr
	for f != int(to.File()) || r != int(to.Rank()) {
		if board.Piece(nchess.NewSquare(nchess.File(f), nchess.Rank(r))) != nchess.NoPiece {
			return false
		}
		f += sf
		r += sr
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
