// Package reconcile keeps the canonical game record and position in step with ledger
// snapshots. Every snapshot is a full read; the position is rebuilt from the starting
// arrangement whenever the move list grows.
package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/obslog"
	"github.com/park285/chess-ledger-sync/internal/record"
)

// Result is the outcome of one Accept call.
type Result int

const (
	Applied Result = iota + 1
	Stale
	RolledBack
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

var ErrSnapshotRejected = errors.New("snapshot rejected")

// State is an immutable view of the canonical game. Record is a private copy.
type State struct {
	Record   *record.GameRecord
	Position engine.Position
	Moves    []engine.Move
}

// Terminal classifies the current position.
func (s State) Terminal() engine.Terminal { return engine.Classify(s.Position) }

// MoveCount is the number of accepted plies.
func (s State) MoveCount() int { return s.Record.MoveCount() }

// AppliedFunc observes every Applied result. prev.Record is nil before the first accept.
type AppliedFunc func(prev, next State)

type Reconciler struct {
	gameID string
	logger *zap.Logger

	// accepts are serialized; readers only take mu.
	acceptMu sync.Mutex

	mu        sync.RWMutex
	rec       *record.GameRecord
	pos       engine.Position
	moves     []engine.Move
	rollbacks int
	hooks     []AppliedFunc
}

// New creates a Reconciler for gameID. A nil logger falls back to the global one.
func New(gameID string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		gameID: gameID,
		logger: obslog.Or(logger).With(zap.String("game_id", gameID)),
		pos:    engine.Start(),
	}
}

// OnApplied registers fn to run after each Applied result, in registration order. Hooks
// run with accepts serialized and must not call Accept.
func (r *Reconciler) OnApplied(fn AppliedFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Current returns a copy of the canonical state.
func (r *Reconciler) Current() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

// MoveCount is the last accepted move count.
func (r *Reconciler) MoveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rec.MoveCount()
}

// ConsecutiveRollbacks counts RolledBack results since the last Applied or Stale one.
func (r *Reconciler) ConsecutiveRollbacks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rollbacks
}

// Accept validates a raw snapshot and reconciles it.
func (r *Reconciler) Accept(s *record.Snapshot) (Result, error) {
	rec, err := s.Validate(r.gameID)
	if err != nil {
		r.logger.Warn("snapshot_malformed", zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrSnapshotRejected, err)
	}
	return r.AcceptRecord(rec)
}

// AcceptRecord reconciles an already validated record.
func (r *Reconciler) AcceptRecord(in *record.GameRecord) (Result, error) {
	if in == nil {
		return 0, fmt.Errorf("%w: nil record", ErrSnapshotRejected)
	}
	incoming := in.Clone()

	r.acceptMu.Lock()
	defer r.acceptMu.Unlock()

	r.mu.RLock()
	cur := r.rec
	local := cur.MoveCount()
	r.mu.RUnlock()

	n := incoming.MoveCount()
	if n < local {
		r.mu.Lock()
		r.rollbacks++
		streak := r.rollbacks
		r.mu.Unlock()
		r.logger.Warn("snapshot_rolled_back",
			zap.Int("local_moves", local),
			zap.Int("remote_moves", n),
			zap.Int("consecutive", streak))
		return RolledBack, nil
	}
	if err := checkTransition(cur, incoming); err != nil {
		r.logger.Warn("snapshot_rejected", zap.Error(err))
		return 0, err
	}

	if n == local && cur != nil {
		if !record.SameMoves(cur.Moves, incoming.Moves) {
			err := fmt.Errorf("%w: move list rewritten at count %d", ErrSnapshotRejected, n)
			r.logger.Warn("snapshot_rejected", zap.Error(err))
			return 0, err
		}
		if cur.Equal(incoming) {
			r.mu.Lock()
			r.rollbacks = 0
			r.mu.Unlock()
			return Stale, nil
		}
		next := cur.Clone()
		next.SeatTwo = incoming.SeatTwo
		next.Status = incoming.Status
		next.Winner = incoming.Winner
		next.StartTime = incoming.StartTime
		prev, state, hooks := r.commit(next, nil, nil)
		r.logger.Info("snapshot_applied",
			zap.Int("moves", n),
			zap.Stringer("status", next.Status),
			zap.Bool("fields_only", true))
		runHooks(hooks, prev, state)
		return Applied, nil
	}

	if cur != nil && !record.SameMoves(cur.Moves, incoming.Moves[:local]) {
		err := fmt.Errorf("%w: move list does not extend the accepted %d moves", ErrSnapshotRejected, local)
		r.logger.Warn("snapshot_rejected", zap.Error(err))
		return 0, err
	}
	pos, moves, err := engine.Replay(incoming.Moves)
	if err != nil {
		r.logger.Warn("snapshot_rejected", zap.Int("remote_moves", n), zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrSnapshotRejected, err)
	}
	prev, state, hooks := r.commit(incoming, &pos, moves)
	r.logger.Info("snapshot_applied",
		zap.Int("moves", n),
		zap.Int("new_moves", n-local),
		zap.Stringer("status", incoming.Status),
		zap.String("fen", pos.FEN()))
	runHooks(hooks, prev, state)
	return Applied, nil
}

// commit swaps in the new record, and position when non-nil, under one lock.
func (r *Reconciler) commit(rec *record.GameRecord, pos *engine.Position, moves []engine.Move) (State, State, []AppliedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.stateLocked()
	r.rec = rec
	if pos != nil {
		r.pos = *pos
		r.moves = moves
	}
	r.rollbacks = 0
	hooks := append([]AppliedFunc(nil), r.hooks...)
	return prev, r.stateLocked(), hooks
}

func (r *Reconciler) stateLocked() State {
	return State{
		Record:   r.rec.Clone(),
		Position: r.pos,
		Moves:    append([]engine.Move(nil), r.moves...),
	}
}

func runHooks(hooks []AppliedFunc, prev, next State) {
	for _, fn := range hooks {
		fn(prev, next)
	}
}

// checkTransition enforces fixed seats and forward-only status.
func checkTransition(cur, next *record.GameRecord) error {
	if cur == nil {
		return nil
	}
	if next.Status < cur.Status {
		return fmt.Errorf("%w: status %s after %s", ErrSnapshotRejected, next.Status, cur.Status)
	}
	if !record.SameAddress(cur.SeatOne, next.SeatOne) {
		return fmt.Errorf("%w: seat one changed", ErrSnapshotRejected)
	}
	if cur.SeatTwo != "" && !record.SameAddress(cur.SeatTwo, next.SeatTwo) {
		return fmt.Errorf("%w: seat two changed", ErrSnapshotRejected)
	}
	return nil
}
