package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/reconcile"
	"github.com/park285/chess-ledger-sync/internal/session"
	"github.com/park285/chess-ledger-sync/internal/stream"
	"github.com/park285/chess-ledger-sync/pkg/gameview"
)

var (
	errNoPending = engine.ErrNoPromotionPending
	errBadPly    = errors.New("ply is not a number")
)

// classify maps a session error to a status code and a rendered body. The catalog
// key is "errors.<code>"; err's own text is the fallback.
func (s *Server) classify(err error, data map[string]any) (int, gameview.Error) {
	var (
		status    int
		code      string
		retryable bool
	)
	if data == nil {
		data = map[string]any{}
	}

	var ime *engine.IllegalMoveError
	var api *ledger.APIError
	switch {
	case errors.Is(err, session.ErrNotYourTurn):
		status, code = http.StatusConflict, "not_your_turn"
	case errors.Is(err, session.ErrGameNotActive):
		status, code = http.StatusConflict, "game_not_active"
	case errors.Is(err, engine.ErrPromotionPending):
		status, code = http.StatusConflict, "promotion_pending"
	case errors.Is(err, engine.ErrNoPromotionPending):
		status, code = http.StatusConflict, "no_promotion_pending"
	case errors.As(err, &ime):
		status, code = http.StatusUnprocessableEntity, "illegal_move"
		data["Move"] = ime.Move.String()
		data["Reason"] = ime.Reason
	case errors.Is(err, engine.ErrIllegalMove):
		status, code = http.StatusUnprocessableEntity, "illegal_move"
	case errors.Is(err, errBadPly):
		status, code = http.StatusBadRequest, "bad_ply"
	case errors.Is(err, engine.ErrPlyOutOfRange):
		status, code = http.StatusNotFound, "ply_out_of_range"
	case errors.Is(err, engine.ErrBadSquare):
		status, code = http.StatusBadRequest, "bad_square"
	case errors.Is(err, engine.ErrBadNotation):
		status, code = http.StatusBadRequest, "bad_notation"
	case errors.Is(err, engine.ErrInvalidPromotion):
		status, code = http.StatusBadRequest, "invalid_promotion"
	case errors.Is(err, session.ErrNotSeated):
		status, code = http.StatusForbidden, "not_seated"
	case errors.Is(err, session.ErrBadWinner):
		status, code = http.StatusBadRequest, "bad_winner"
	case errors.Is(err, session.ErrClosed), errors.Is(err, stream.ErrClosed), errors.Is(err, stream.ErrNotStarted):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ledger.ErrNotFound):
		status, code = http.StatusNotFound, "game_not_found"
	case errors.Is(err, reconcile.ErrSnapshotRejected):
		status, code = http.StatusBadGateway, "snapshot_rejected"
	case errors.As(err, &api):
		status, code = http.StatusBadGateway, "ledger"
		retryable = api.Status == http.StatusTooManyRequests || api.Status >= 500
	case errors.Is(err, session.ErrLedger):
		status, code, retryable = http.StatusBadGateway, "ledger", true
	case errors.Is(err, context.DeadlineExceeded):
		status, code, retryable = http.StatusGatewayTimeout, "timeout", true
	default:
		status, code, retryable = http.StatusBadGateway, "ledger", true
	}
	return status, gameview.Error{
		Code:      code,
		Message:   s.cat.Text("errors."+code, data, err.Error()),
		Retryable: retryable,
	}
}
