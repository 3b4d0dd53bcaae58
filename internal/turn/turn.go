// Package turn derives whose move it is from an accepted game record. Nothing here is
// cached; callers pass the latest record every time.
package turn

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-ledger-sync/internal/record"
)

// Seat identifies one of the two fixed roles in a game.
type Seat int

const (
	NoSeat Seat = iota
	SeatOne
	SeatTwo
)

func (s Seat) String() string {
	switch s {
	case SeatOne:
		return "seat_one"
	case SeatTwo:
		return "seat_two"
	default:
		return "none"
	}
}

// SideToMove is SeatOne on an even move count, SeatTwo otherwise.
func SideToMove(rec *record.GameRecord) Seat {
	if rec.MoveCount()%2 == 0 {
		return SeatOne
	}
	return SeatTwo
}

// SeatOf returns the caller's seat. An empty seat never matches.
func SeatOf(rec *record.GameRecord, caller string) Seat {
	if rec == nil || caller == "" {
		return NoSeat
	}
	switch {
	case rec.SeatOne != "" && record.SameAddress(caller, rec.SeatOne):
		return SeatOne
	case rec.SeatTwo != "" && record.SameAddress(caller, rec.SeatTwo):
		return SeatTwo
	}
	return NoSeat
}

// IsMyTurn reports whether caller occupies the seat that moves next.
func IsMyTurn(rec *record.GameRecord, caller string) bool {
	seat := SeatOf(rec, caller)
	return seat != NoSeat && seat == SideToMove(rec)
}

// IsParticipant reports whether caller holds either seat.
func IsParticipant(rec *record.GameRecord, caller string) bool {
	return SeatOf(rec, caller) != NoSeat
}

// ColorOf maps the caller's seat to a piece color; seat one plays white.
func ColorOf(rec *record.GameRecord, caller string) nchess.Color {
	switch SeatOf(rec, caller) {
	case SeatOne:
		return nchess.White
	case SeatTwo:
		return nchess.Black
	}
	return nchess.NoColor
}
