package gameview

import (
	"strconv"
	"strings"
)

// MovePair is one numbered line of the move history.
type MovePair struct {
	Number int    `json:"number"`
	White  string `json:"white"`
	Black  string `json:"black,omitempty"`
}

// PairMoves groups plies into numbered white/black pairs.
func PairMoves(moves []string) []MovePair {
	out := make([]MovePair, 0, (len(moves)+1)/2)
	for i := 0; i < len(moves); i += 2 {
		p := MovePair{Number: i/2 + 1, White: strings.TrimSpace(moves[i])}
		if i+1 < len(moves) {
			p.Black = strings.TrimSpace(moves[i+1])
		}
		out = append(out, p)
	}
	return out
}

// FormatMoveList renders "1. e4 e5 2. Nf3". limit keeps only the last limit pairs when > 0.
func FormatMoveList(moves []string, limit int) string {
	pairs := PairMoves(moves)
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[len(pairs)-limit:]
	}
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(p.Number))
		b.WriteString(". ")
		b.WriteString(p.White)
		if p.Black != "" {
			b.WriteByte(' ')
			b.WriteString(p.Black)
		}
	}
	return b.String()
}
