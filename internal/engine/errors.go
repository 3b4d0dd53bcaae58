package engine

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove        = errors.New("illegal move")
	ErrPromotionRequired  = errors.New("promotion piece required")
	ErrPromotionPending   = errors.New("promotion pending")
	ErrNoPromotionPending = errors.New("no promotion pending")
	ErrInvalidPromotion   = errors.New("invalid promotion piece")
	ErrBadNotation        = errors.New("unrecognised move notation")
	ErrBadSquare          = errors.New("invalid square")
)

// Reasons reported by IllegalMoveError.
const (
	ReasonEmptySource    = "source square is empty"
	ReasonWrongColor     = "piece does not belong to side to move"
	ReasonUnreachable    = "destination not reachable"
	ReasonKingInCheck    = "move leaves own king in check"
	ReasonBadPromotion   = "promotion not allowed for this move"
	ReasonGameTerminated = "position is terminal"
)

// IllegalMoveError describes why a move was refused. It matches ErrIllegalMove.
type IllegalMoveError struct {
	Move   Move
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s: %s", e.Move, e.Reason)
}

func (e *IllegalMoveError) Unwrap() error { return ErrIllegalMove }

// ReplayError reports the first move of a sequence that could not be replayed.
type ReplayError struct {
	Index    int
	Notation string
	Err      error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay move #%d %q: %v", e.Index+1, e.Notation, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

func illegal(mv Move, reason string) error {
	return &IllegalMoveError{Move: mv, Reason: reason}
}
