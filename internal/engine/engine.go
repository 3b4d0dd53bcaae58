package engine

import (
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Terminal classifies the side to move's situation.
type Terminal int

const (
	None Terminal = iota
	Check
	Checkmate
	Stalemate
)

func (t Terminal) String() string {
	switch t {
	case Check:
		return "check"
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	default:
		return "none"
	}
}

// LegalDestinations lists squares the piece on sq may move to. It is empty when sq is
// empty or holds a piece of the side not to move.
func LegalDestinations(p Position, sq nchess.Square) []nchess.Square {
	pos := p.inner()
	piece := pos.Board().Piece(sq)
	if piece == nchess.NoPiece || piece.Color() != pos.Turn() {
		return nil
	}
	seen := make(map[nchess.Square]struct{})
	var out []nchess.Square
	for _, mv := range pos.ValidMoves() {
		if mv.S1() != sq {
			continue
		}
		// four promotion moves share a destination
		if _, ok := seen[mv.S2()]; ok {
			continue
		}
		seen[mv.S2()] = struct{}{}
		out = append(out, mv.S2())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NeedsPromotion reports whether moving the piece on from to to is a pawn reaching the last rank.
func NeedsPromotion(p Position, from, to nchess.Square) bool {
	piece := p.Piece(from)
	return piece.Type() == nchess.Pawn && to.Rank() == lastRank(piece.Color())
}

// Resolve checks mv against the rules and returns it with canonical SAN notation.
// A pawn reaching the last rank without a promotion kind yields ErrPromotionRequired.
func Resolve(p Position, mv Move) (Move, error) {
	_, resolved, err := resolve(p, mv)
	return resolved, err
}

// Apply returns the position after mv. On any error p is returned unchanged.
func Apply(p Position, mv Move) (Position, error) {
	next, _, err := resolve(p, mv)
	if err != nil {
		return p, err
	}
	return next, nil
}

func resolve(p Position, mv Move) (Position, Move, error) {
	pos := p.inner()
	piece := pos.Board().Piece(mv.From)
	if piece == nchess.NoPiece {
		return p, mv, illegal(mv, ReasonEmptySource)
	}
	if piece.Color() != pos.Turn() {
		return p, mv, illegal(mv, ReasonWrongColor)
	}
	if st := pos.Status(); st == nchess.Checkmate || st == nchess.Stalemate {
		return p, mv, illegal(mv, ReasonGameTerminated)
	}
	needsPromo := piece.Type() == nchess.Pawn && mv.To.Rank() == lastRank(piece.Color())
	if mv.Promotion != nchess.NoPieceType {
		if !needsPromo {
			return p, mv, illegal(mv, ReasonBadPromotion)
		}
		if !promotable(mv.Promotion) {
			return p, mv, fmt.Errorf("%w: %s", ErrInvalidPromotion, mv.Promotion)
		}
	}

	var (
		match      *nchess.Move
		destLegal  bool
		candidates = pos.ValidMoves()
	)
	for i := range candidates {
		c := &candidates[i]
		if c.S1() != mv.From || c.S2() != mv.To {
			continue
		}
		destLegal = true
		if c.Promo() == mv.Promotion {
			match = c
			break
		}
	}
	if !destLegal {
		if pseudoReachable(pos.Board(), mv.From, mv.To) {
			return p, mv, illegal(mv, ReasonKingInCheck)
		}
		return p, mv, illegal(mv, ReasonUnreachable)
	}
	if match == nil {
		// destination is legal, only the promotion piece is missing
		return p, mv, ErrPromotionRequired
	}

	resolved := Move{
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		Notation:  nchess.AlgebraicNotation{}.Encode(pos, match),
		Captured:  capturedBy(pos, match),
	}
	next := pos.Update(match)
	if next == nil {
		return p, mv, illegal(mv, ReasonUnreachable)
	}
	return Position{pos: next, inCheck: match.HasTag(nchess.Check), ply: p.ply + 1}, resolved, nil
}

// capturedBy returns the piece match takes in pos, or NoPiece.
func capturedBy(pos *nchess.Position, match *nchess.Move) nchess.Piece {
	if !match.HasTag(nchess.Capture) && !match.HasTag(nchess.EnPassant) {
		return nchess.NoPiece
	}
	sq := match.S2()
	if match.HasTag(nchess.EnPassant) {
		if pos.Turn() == nchess.White {
			sq = nchess.NewSquare(sq.File(), sq.Rank()-1)
		} else {
			sq = nchess.NewSquare(sq.File(), sq.Rank()+1)
		}
	}
	return pos.Board().Piece(sq)
}

// Decode parses UCI coordinates ("g1f3", "b7b8q") or SAN as stored on the ledger.
// Coordinate-shaped text is never handed to the SAN parser, which would read "g1f3" as f3.
func Decode(p Position, notation string) (Move, error) {
	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Move{}, ErrBadNotation
	}
	if mv, ok := parseUCI(raw); ok {
		return mv, nil
	}
	mv, err := nchess.AlgebraicNotation{}.Decode(p.inner(), raw)
	if err != nil || mv == nil {
		return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, raw)
	}
	return Move{From: mv.S1(), To: mv.S2(), Promotion: mv.Promo()}, nil
}

// parseUCI reports whether raw has coordinate shape and returns the squares it names.
// Legality is left to resolve, so a missing promotion piece still surfaces as
// ErrPromotionRequired.
func parseUCI(raw string) (Move, bool) {
	s := strings.ToLower(raw)
	if len(s) != 4 && len(s) != 5 {
		return Move{}, false
	}
	from, err := ParseSquare(s[:2])
	if err != nil {
		return Move{}, false
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, false
	}
	mv := Move{From: from, To: to, Promotion: nchess.NoPieceType}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
			mv.Promotion, _ = ParsePromotion(s[4:])
		default:
			return Move{}, false
		}
	}
	return mv, true
}

// IsCoordinate reports whether notation is UCI-shaped.
func IsCoordinate(notation string) bool {
	_, ok := parseUCI(strings.TrimSpace(notation))
	return ok
}

// Replay rebuilds a position from the starting arrangement. It never returns a partial result.
func Replay(notations []string) (Position, []Move, error) {
	pos := Start()
	moves := make([]Move, 0, len(notations))
	for i, n := range notations {
		mv, err := Decode(pos, n)
		if err != nil {
			return Position{}, nil, &ReplayError{Index: i, Notation: n, Err: err}
		}
		next, resolved, err := resolve(pos, mv)
		if err != nil {
			return Position{}, nil, &ReplayError{Index: i, Notation: n, Err: err}
		}
		pos = next
		moves = append(moves, resolved)
	}
	return pos, moves, nil
}

// Classify reports check, checkmate or stalemate for the side to move.
func Classify(p Position) Terminal {
	switch p.inner().Status() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	}
	if p.inCheck {
		return Check
	}
	return None
}
