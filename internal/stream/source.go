// Package stream delivers ledger snapshots to a sink through a push feed, falling back
// to periodic reads when the feed fails. It never interprets the game.
package stream

import (
	"context"

	"github.com/park285/chess-ledger-sync/internal/record"
)

// SnapshotFunc receives a full snapshot from a push feed.
type SnapshotFunc func(s *record.Snapshot)

// ErrorFunc reports that a push feed has failed. The feed delivers nothing afterwards.
type ErrorFunc func(err error)

// Source opens a push feed for one game.
type Source interface {
	Subscribe(ctx context.Context, gameID string, onSnapshot SnapshotFunc, onError ErrorFunc) (Handle, error)
}

// Handle cancels a feed. Close returns once the feed's goroutines have exited, or with
// ctx's error if that takes too long.
type Handle interface {
	Close(ctx context.Context) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, gameID string, onSnapshot SnapshotFunc, onError ErrorFunc) (Handle, error)

func (f SourceFunc) Subscribe(ctx context.Context, gameID string, onSnapshot SnapshotFunc, onError ErrorFunc) (Handle, error) {
	return f(ctx, gameID, onSnapshot, onError)
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context) error

func (f HandleFunc) Close(ctx context.Context) error { return f(ctx) }

// Sink consumes snapshots and reports the accepted move count afterwards.
type Sink interface {
	Deliver(s *record.Snapshot) (moveCount int, err error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *record.Snapshot) (int, error)

func (f SinkFunc) Deliver(s *record.Snapshot) (int, error) { return f(s) }
