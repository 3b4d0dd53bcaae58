// Package httpapi serves one game session to the local board UI.
//
// Routes:
//   - GET    /health
//   - GET    /game                    current view
//   - GET    /game/moves/{square}     legal destinations preview
//   - GET    /game/positions/{ply}    board after ply moves, for history stepping
//   - POST   /game/moves              {from,to,promotion} or {move}
//   - POST   /game/promotion          {piece}
//   - DELETE /game/promotion
//   - POST   /game/end                {winner}
//   - POST   /game/refresh            one authoritative ledger read
//
// Moves are validated locally and handed to the ledger; nothing is applied until a
// snapshot carries them.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/msgcat"
	"github.com/park285/chess-ledger-sync/internal/obslog"
	"github.com/park285/chess-ledger-sync/internal/session"
	"github.com/park285/chess-ledger-sync/pkg/gameview"
)

// Game is the slice of session.Session the routes use.
type Game interface {
	View() gameview.View
	Destinations(square string) ([]string, error)
	PositionAt(ply int) (gameview.Frame, error)
	ProposeMove(ctx context.Context, from, to, promotion string) (session.MoveResult, error)
	ProposeNotation(ctx context.Context, notation string) (session.MoveResult, error)
	Promote(ctx context.Context, kind string) (session.MoveResult, error)
	CancelPromotion() bool
	EndGame(ctx context.Context, winner string) (*ledger.Receipt, error)
	Refresh(ctx context.Context) error
}

type Server struct {
	r      *chi.Mux
	game   Game
	cat    *msgcat.Catalog
	logger *zap.Logger

	mu  sync.Mutex
	srv *http.Server
}

// New constructs a Server, installs middleware, and registers routes.
func New(game Game, cat *msgcat.Catalog, logger *zap.Logger) *Server {
	s := &Server{r: chi.NewRouter(), game: game, cat: cat, logger: obslog.Or(logger)}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(15 * time.Second))
	s.r.Use(s.accessLog)
	s.r.Use(jsonContentType)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.r.Route("/game", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Get("/moves/{square}", s.handleDestinations)
		r.Get("/positions/{ply}", s.handlePosition)
		r.Post("/moves", s.handleMove)
		r.Post("/promotion", s.handlePromote)
		r.Delete("/promotion", s.handleCancelPromotion)
		r.Post("/end", s.handleEnd)
		r.Post("/refresh", s.handleRefresh)
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, gameview.Error{Code: "not_found", Message: r.URL.Path})
	})
	return s
}

// Router exposes the router for tests and embedding.
func (s *Server) Router() chi.Router { return s.r }

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("http_listen", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ----------------------------- middleware ----------------------------------

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// ------------------------------- handlers ----------------------------------

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.View())
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	square := chi.URLParam(r, "square")
	targets, err := s.game.Destinations(square)
	if err != nil {
		s.writeError(w, err, map[string]any{"Input": square})
		return
	}
	writeJSON(w, http.StatusOK, gameview.Destinations{Square: strings.ToLower(square), Targets: targets})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "ply")
	ply, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, errBadPly, map[string]any{"Input": raw})
		return
	}
	frame, err := s.game.PositionAt(ply)
	if err != nil {
		s.writeError(w, err, map[string]any{"Input": raw})
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

type moveReq struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
	Move      string `json:"move"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, gameview.Error{Code: "bad_json", Message: err.Error()})
		return
	}
	var (
		res   session.MoveResult
		err   error
		input string
	)
	switch {
	case strings.TrimSpace(req.Move) != "":
		input = req.Move
		res, err = s.game.ProposeNotation(r.Context(), req.Move)
	case req.From != "" && req.To != "":
		input = req.From + req.To
		res, err = s.game.ProposeMove(r.Context(), req.From, req.To, req.Promotion)
	default:
		writeJSON(w, http.StatusBadRequest, gameview.Error{Code: "bad_request", Message: "from/to or move is required"})
		return
	}
	if err != nil {
		s.writeError(w, err, map[string]any{"Input": input})
		return
	}
	writeAck(w, res)
}

type promoteReq struct {
	Piece string `json:"piece"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, gameview.Error{Code: "bad_json", Message: err.Error()})
		return
	}
	res, err := s.game.Promote(r.Context(), req.Piece)
	if err != nil {
		s.writeError(w, err, map[string]any{"Input": req.Piece})
		return
	}
	writeAck(w, res)
}

func (s *Server) handleCancelPromotion(w http.ResponseWriter, r *http.Request) {
	if !s.game.CancelPromotion() {
		s.writeError(w, errNoPending, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type endReq struct {
	Winner string `json:"winner"`
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, gameview.Error{Code: "bad_json", Message: err.Error()})
		return
	}
	receipt, err := s.game.EndGame(r.Context(), req.Winner)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	ack := gameview.MoveAck{}
	if receipt != nil {
		ack.TxHash = receipt.TxHash
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.game.Refresh(r.Context()); err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.game.View())
}

// ------------------------------- helpers -----------------------------------

func writeAck(w http.ResponseWriter, res session.MoveResult) {
	ack := gameview.MoveAck{Notation: res.Move.Notation, Pending: res.Pending}
	if res.Receipt != nil {
		ack.TxHash = res.Receipt.TxHash
	}
	status := http.StatusAccepted
	if res.Pending {
		status = http.StatusOK
	}
	writeJSON(w, status, ack)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error, data map[string]any) {
	status, body := s.classify(err, data)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("http_error", zap.Int("status", status), zap.String("code", body.Code), zap.Error(err))
	}
	writeJSON(w, status, body)
}
