package engine

import (
	"errors"
	"sync"

	nchess "github.com/corentings/chess/v2"
)

// Draft is the outcome of a local move attempt.
type Draft struct {
	Position Position
	Move     Move
	// Pending is set when the move is waiting for a promotion piece; Position is unchanged.
	Pending bool
}

// Drafter validates the local player's move input and holds at most one pending promotion.
// It never touches the canonical position; callers pass the position to validate against.
type Drafter struct {
	mu      sync.Mutex
	pending *PendingPromotion
}

func NewDrafter() *Drafter { return &Drafter{} }

// Pending returns the outstanding promotion, if any.
func (d *Drafter) Pending() (PendingPromotion, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return PendingPromotion{}, false
	}
	return *d.pending, true
}

// Apply validates mv against p. A pawn move to the last rank without a promotion kind is
// recorded as pending and p is returned unchanged. While a promotion is pending any other
// move fails with ErrPromotionPending.
func (d *Drafter) Apply(p Position, mv Move) (Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		if d.pending.From != mv.From || d.pending.To != mv.To {
			return Draft{Position: p}, ErrPromotionPending
		}
		if mv.Promotion == nchess.NoPieceType {
			return Draft{Position: p, Pending: true}, nil
		}
		return d.finalize(p, mv)
	}

	next, resolved, err := resolve(p, mv)
	if errors.Is(err, ErrPromotionRequired) {
		d.pending = &PendingPromotion{From: mv.From, To: mv.To}
		return Draft{Position: p, Pending: true}, nil
	}
	if err != nil {
		return Draft{Position: p}, err
	}
	return Draft{Position: next, Move: resolved}, nil
}

// Promote supplies the piece kind for the pending move and finalizes exactly that move.
func (d *Drafter) Promote(p Position, kind nchess.PieceType) (Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return Draft{Position: p}, ErrNoPromotionPending
	}
	if !promotable(kind) {
		return Draft{Position: p, Pending: true}, ErrInvalidPromotion
	}
	return d.finalize(p, Move{From: d.pending.From, To: d.pending.To, Promotion: kind})
}

// Cancel drops the pending promotion. It reports whether one was outstanding.
func (d *Drafter) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	had := d.pending != nil
	d.pending = nil
	return had
}

func (d *Drafter) finalize(p Position, mv Move) (Draft, error) {
	if !promotable(mv.Promotion) {
		return Draft{Position: p, Pending: true}, ErrInvalidPromotion
	}
	next, resolved, err := resolve(p, mv)
	// the queued move is consumed either way; a stale pending entry must not block later input
	d.pending = nil
	if err != nil {
		return Draft{Position: p}, err
	}
	return Draft{Position: next, Move: resolved}, nil
}
