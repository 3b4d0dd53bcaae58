// Package ledger is the boundary to the external game ledger: point-in-time reads of a
// game and the write calls the UI forwards.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/chess-ledger-sync/internal/record"
)

// Reader returns the full authoritative record of one game.
type Reader interface {
	ReadGame(ctx context.Context, gameID string) (*record.Snapshot, error)
}

// Writer submits transactions. A nil error means the ledger accepted the request, not that
// the move is final; callers wait for it to appear in a snapshot.
type Writer interface {
	SubmitMove(ctx context.Context, gameID, notation string) (*Receipt, error)
	EndGame(ctx context.Context, gameID, winnerOrDraw string) (*Receipt, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, gameID string) (*record.Snapshot, error)

func (f ReaderFunc) ReadGame(ctx context.Context, gameID string) (*record.Snapshot, error) {
	return f(ctx, gameID)
}

// Receipt is the ledger's acknowledgement of a write.
type Receipt struct {
	TxHash string `json:"txHash"`
}

type moveRequest struct {
	Notation string `json:"notation"`
}

type endRequest struct {
	Winner string `json:"winner"`
}

var ErrNotFound = errors.New("ledger: game not found")

// APIError is a non-2xx answer from the ledger gateway.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api error: status=%d body=%s", e.Status, e.Body)
}
