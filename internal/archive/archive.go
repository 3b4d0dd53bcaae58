// Package archive persists finished games with a PGN transcript.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-ledger-sync/internal/record"
)

var ErrNotFound = errors.New("archive: game not found")

// Entry is one finished game.
type Entry struct {
	GameID      string
	SeatOne     string
	SeatTwo     string
	Winner      string
	Result      string // white | black | draw
	Termination string // checkmate | stalemate | ledger
	Moves       []string
	ECO         string
	Opening     string
	PGN         string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Repository stores entries keyed by game id; saving the same game again replaces it.
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	Get(ctx context.Context, gameID string) (*Entry, error)
	RecentByPlayer(ctx context.Context, addr string, limit int) ([]*Entry, error)
	Close() error
}

// NewEntry builds the archive row for a finished record.
func NewEntry(rec *record.GameRecord, termination, eco, opening string, endedAt time.Time) (*Entry, error) {
	if rec == nil {
		return nil, errors.New("archive: nil record")
	}
	if rec.Status != record.StatusFinished {
		return nil, fmt.Errorf("archive: game %s is %s", rec.GameID, rec.Status)
	}
	e := &Entry{
		GameID:      rec.GameID,
		SeatOne:     rec.SeatOne,
		SeatTwo:     rec.SeatTwo,
		Winner:      rec.Winner,
		Result:      resultOf(rec),
		Termination: strings.ToLower(strings.TrimSpace(termination)),
		Moves:       append([]string(nil), rec.Moves...),
		ECO:         eco,
		Opening:     opening,
		StartedAt:   rec.StartTime,
		EndedAt:     endedAt,
	}
	if e.Termination == "" {
		e.Termination = "ledger"
	}
	e.PGN = buildPGN(e)
	return e, nil
}

func resultOf(rec *record.GameRecord) string {
	switch {
	case rec.IsDraw():
		return "draw"
	case record.SameAddress(rec.Winner, rec.SeatOne):
		return "white"
	case record.SameAddress(rec.Winner, rec.SeatTwo):
		return "black"
	default:
		return ""
	}
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(e *Entry) string {
	var b strings.Builder
	date := e.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	pgnResult := mapResultToPGN(e.Result)

	fmt.Fprintf(&b, "[Event \"Ledger game %s\"]\n", sanitizePGN(e.GameID))
	b.WriteString("[Site \"ledger\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(e.SeatOne))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(e.SeatTwo))
	if e.ECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitizePGN(e.ECO))
	}
	if e.Opening != "" {
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitizePGN(e.Opening))
	}
	fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(e.Termination))
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	for i := 0; i < len(e.Moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(e.Moves[i]))
		if i+1 < len(e.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(e.Moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
