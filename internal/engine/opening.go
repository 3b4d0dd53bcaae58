package engine

import (
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func book() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// Opening returns the ECO code and title for a move sequence, or empty strings when the
// sequence is unknown or cannot be replayed.
func Opening(notations []string) (code, title string) {
	if len(notations) == 0 {
		return "", ""
	}
	game := nchess.NewGame()
	for _, n := range notations {
		raw := strings.TrimSpace(n)
		var notation nchess.Notation = nchess.AlgebraicNotation{}
		if IsCoordinate(raw) {
			raw, notation = strings.ToLower(raw), nchess.UCINotation{}
		}
		if err := game.PushNotationMove(raw, notation, nil); err != nil {
			return "", ""
		}
	}
	b := book()
	if b == nil {
		return "", ""
	}
	if eco := b.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
