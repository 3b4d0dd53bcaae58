package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle of a game on the ledger.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusActive
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusActive:
		return "ACTIVE"
	case StatusFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// DrawSentinel is the winner value the ledger uses for a drawn game.
const DrawSentinel = "0x0000000000000000000000000000000000000000"

var ErrMalformedSnapshot = errors.New("malformed snapshot")

// GameRecord is the authoritative game as last accepted from the ledger.
type GameRecord struct {
	GameID    string
	SeatOne   string
	SeatTwo   string // empty until joined
	Moves     []string
	StartTime time.Time
	Status    Status
	Winner    string // empty, an address, or DrawSentinel
}

// MoveCount is the number of recorded plies.
func (r *GameRecord) MoveCount() int {
	if r == nil {
		return 0
	}
	return len(r.Moves)
}

// IsDraw reports whether the game finished without a winner.
func (r *GameRecord) IsDraw() bool {
	return r != nil && r.Status == StatusFinished && SameAddress(r.Winner, DrawSentinel)
}

// Clone returns a deep copy; the move slice is never shared.
func (r *GameRecord) Clone() *GameRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Moves = append([]string(nil), r.Moves...)
	return &c
}

// Equal compares every field, addresses case-insensitively.
func (r *GameRecord) Equal(o *GameRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.GameID != o.GameID || r.Status != o.Status || !r.StartTime.Equal(o.StartTime) {
		return false
	}
	if !SameAddress(r.SeatOne, o.SeatOne) || !SameAddress(r.SeatTwo, o.SeatTwo) || !SameAddress(r.Winner, o.Winner) {
		return false
	}
	return SameMoves(r.Moves, o.Moves)
}

// SameMoves compares two move lists element by element.
func SameMoves(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

// SameAddress compares ledger addresses ignoring checksum casing. Empty and the zero
// address are distinct: an empty seat is unjoined, the zero address is the draw sentinel.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
