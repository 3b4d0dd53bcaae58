package record

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Snapshot is one full read of a game as delivered by the ledger reader or the push feed.
// Field names follow the contract's `games(uint256)` getter.
type Snapshot struct {
	GameID    string   `json:"gameId"`
	Player1   string   `json:"player1"`
	Player2   string   `json:"player2"`
	Moves     []string `json:"moves"`
	StartTime int64    `json:"startTime"`
	Status    *uint8   `json:"status"`
	Winner    string   `json:"winner"`
}

// Validate checks the snapshot shape and converts it to a GameRecord. Nothing is coerced:
// any unexpected value yields ErrMalformedSnapshot.
func (s *Snapshot) Validate(expectGameID string) (*GameRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedSnapshot)
	}
	if expectGameID != "" && strings.TrimSpace(s.GameID) != strings.TrimSpace(expectGameID) {
		return nil, fmt.Errorf("%w: game id %q, want %q", ErrMalformedSnapshot, s.GameID, expectGameID)
	}
	if s.Status == nil {
		return nil, fmt.Errorf("%w: missing status", ErrMalformedSnapshot)
	}
	status := Status(*s.Status)
	if status > StatusFinished {
		return nil, fmt.Errorf("%w: unknown status %d", ErrMalformedSnapshot, *s.Status)
	}
	if !isAddress(s.Player1) || isZeroAddress(s.Player1) {
		return nil, fmt.Errorf("%w: bad player1 %q", ErrMalformedSnapshot, s.Player1)
	}
	seatTwo := strings.TrimSpace(s.Player2)
	if seatTwo != "" && !isAddress(seatTwo) {
		return nil, fmt.Errorf("%w: bad player2 %q", ErrMalformedSnapshot, s.Player2)
	}
	if isZeroAddress(seatTwo) {
		seatTwo = ""
	}
	if status != StatusWaiting && seatTwo == "" {
		return nil, fmt.Errorf("%w: %s game without second seat", ErrMalformedSnapshot, status)
	}
	if status == StatusWaiting && len(s.Moves) > 0 {
		return nil, fmt.Errorf("%w: moves recorded before game start", ErrMalformedSnapshot)
	}
	if s.StartTime < 0 {
		return nil, fmt.Errorf("%w: negative start time", ErrMalformedSnapshot)
	}
	moves := make([]string, len(s.Moves))
	for i, m := range s.Moves {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, fmt.Errorf("%w: empty move at index %d", ErrMalformedSnapshot, i)
		}
		moves[i] = m
	}

	winner := strings.TrimSpace(s.Winner)
	if winner != "" && !isAddress(winner) {
		return nil, fmt.Errorf("%w: bad winner %q", ErrMalformedSnapshot, s.Winner)
	}
	switch {
	case status != StatusFinished:
		// an unset winner reads back as the zero address
		if winner != "" && !isZeroAddress(winner) {
			return nil, fmt.Errorf("%w: winner set on %s game", ErrMalformedSnapshot, status)
		}
		winner = ""
	case winner == "" || isZeroAddress(winner):
		winner = DrawSentinel
	case !SameAddress(winner, s.Player1) && !SameAddress(winner, seatTwo):
		return nil, fmt.Errorf("%w: winner %q is not seated", ErrMalformedSnapshot, winner)
	}

	rec := &GameRecord{
		GameID:  strings.TrimSpace(s.GameID),
		SeatOne: strings.TrimSpace(s.Player1),
		SeatTwo: seatTwo,
		Moves:   moves,
		Status:  status,
		Winner:  winner,
	}
	if s.StartTime > 0 {
		rec.StartTime = time.Unix(s.StartTime, 0).UTC()
	}
	return rec, nil
}

// FromRecord builds the wire form of a record; used by the snapshot cache.
func FromRecord(r *GameRecord) *Snapshot {
	if r == nil {
		return nil
	}
	st := uint8(r.Status)
	s := &Snapshot{
		GameID:  r.GameID,
		Player1: r.SeatOne,
		Player2: r.SeatTwo,
		Moves:   append([]string(nil), r.Moves...),
		Status:  &st,
		Winner:  r.Winner,
	}
	if !r.StartTime.IsZero() {
		s.StartTime = r.StartTime.Unix()
	}
	return s
}

func isAddress(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

func isZeroAddress(s string) bool {
	return SameAddress(s, DrawSentinel)
}
