// Package session owns one game's canonical state and its subscriber, and gates the
// local player's move input on that state.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-ledger-sync/internal/archive"
	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/msgcat"
	"github.com/park285/chess-ledger-sync/internal/obslog"
	"github.com/park285/chess-ledger-sync/internal/reconcile"
	"github.com/park285/chess-ledger-sync/internal/record"
	"github.com/park285/chess-ledger-sync/internal/stream"
	"github.com/park285/chess-ledger-sync/internal/turn"
)

var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrGameNotActive = errors.New("game is not active")
	ErrClosed        = errors.New("session closed")
	ErrNotSeated     = errors.New("caller is not seated in this game")
	ErrBadWinner     = errors.New("winner must be a seated address or the draw sentinel")
	// ErrLedger wraps failures of the ledger write path.
	ErrLedger = errors.New("ledger write failed")
)

// Cache is the warm-start store; snapcache.Store satisfies it.
type Cache interface {
	Load(ctx context.Context, gameID string) (*record.Snapshot, error)
	Save(ctx context.Context, rec *record.GameRecord) error
}

type Options struct {
	GameID string
	Player string

	Reader ledger.Reader
	Writer ledger.Writer
	Source stream.Source // nil polls only
	Stream stream.Config

	Cache   Cache
	Archive archive.Repository
	Catalog *msgcat.Catalog
	Logger  *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Session struct {
	id     string
	gameID string
	player string
	writer ledger.Writer
	cache  Cache
	arch   archive.Repository
	cat    *msgcat.Catalog
	logger *zap.Logger

	rec     *reconcile.Reconciler
	sub     *stream.Subscriber
	drafter *engine.Drafter
	// move count the pending promotion was drafted against
	pendingAt atomic.Int64

	persistMu     sync.RWMutex
	persist       chan persistJob
	persistClosed bool
	persistWG     sync.WaitGroup

	now func() time.Time
	// unix nanos of the first accepted FINISHED record; zero while the game runs
	finishedAt atomic.Int64

	startOnce sync.Once
	closed    atomic.Bool

	openingMu sync.Mutex
	opening   openingCache
}

type persistJob struct {
	rec      *record.GameRecord
	finished bool
	terminal engine.Terminal
	moves    []string
}

type openingCache struct {
	count       int
	code, title string
}

func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.GameID) == "" {
		return nil, errors.New("session: game id is required")
	}
	if strings.TrimSpace(opts.Player) == "" {
		return nil, errors.New("session: player address is required")
	}
	if opts.Reader == nil {
		return nil, errors.New("session: ledger reader is required")
	}

	id := uuid.NewString()
	logger := obslog.Or(opts.Logger).With(zap.String("session_id", id))
	s := &Session{
		id:      id,
		gameID:  strings.TrimSpace(opts.GameID),
		player:  strings.TrimSpace(opts.Player),
		writer:  opts.Writer,
		cache:   opts.Cache,
		arch:    opts.Archive,
		cat:     opts.Catalog,
		logger:  logger,
		drafter: engine.NewDrafter(),
		persist: make(chan persistJob, 32),
		now:     time.Now,
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	s.rec = reconcile.New(s.gameID, logger)
	s.rec.OnApplied(s.onApplied)

	cfg := opts.Stream
	cfg.GameID = s.gameID
	cfg.SessionID = id
	s.sub = stream.New(cfg, opts.Source, opts.Reader, stream.SinkFunc(s.deliver), logger)
	s.sub.OnDegraded(func(failures int, err error) {
		logger.Warn("session_degraded", zap.Int("failures", failures), zap.Error(err))
	})
	return s, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) GameID() string { return s.gameID }
func (s *Session) Player() string { return s.player }

// OnStateChange forwards subscriber transitions.
func (s *Session) OnStateChange(cb stream.StateCallback) { s.sub.OnStateChange(cb) }

// Start replays the cached snapshot, if any, and starts the subscriber.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var err error
	s.startOnce.Do(func() {
		s.persistMu.Lock()
		if s.persistClosed {
			s.persistMu.Unlock()
			err = ErrClosed
			return
		}
		s.persistWG.Add(1)
		s.persistMu.Unlock()
		go s.persistLoop()
		if s.cache != nil {
			s.warmStart(ctx)
		}
		err = s.sub.Start()
	})
	return err
}

func (s *Session) warmStart(ctx context.Context) {
	snap, err := s.cache.Load(ctx, s.gameID)
	if err != nil {
		s.logger.Warn("warm_start_load_error", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}
	res, err := s.rec.Accept(snap)
	if err != nil {
		s.logger.Warn("warm_start_rejected", zap.Error(err))
		return
	}
	s.logger.Info("warm_start", zap.Stringer("result", res), zap.Int("moves", s.rec.MoveCount()))
}

// Close tears down the subscriber and waits for pending cache and archive writes. The
// persist queue is closed even when ctx expires first, so a later Close only waits.
func (s *Session) Close(ctx context.Context) error {
	s.closed.Store(true)
	var err error
	if cerr := s.sub.Close(ctx); cerr != nil {
		err = fmt.Errorf("close subscriber: %w", cerr)
	}

	s.persistMu.Lock()
	if !s.persistClosed {
		s.persistClosed = true
		close(s.persist)
	}
	s.persistMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.persistWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// deliver is the subscriber's sink.
func (s *Session) deliver(snap *record.Snapshot) (int, error) {
	_, err := s.rec.Accept(snap)
	return s.rec.MoveCount(), err
}

func (s *Session) onApplied(prev, next reconcile.State) {
	if _, ok := s.drafter.Pending(); ok && (s.pendingAt.Load() != int64(next.MoveCount()) || next.Record.Status != record.StatusActive) {
		if s.drafter.Cancel() {
			s.logger.Info("promotion_dropped", zap.Int("moves", next.MoveCount()))
		}
	}
	job := persistJob{rec: next.Record}
	if next.Record.Status == record.StatusFinished && (prev.Record == nil || prev.Record.Status != record.StatusFinished) {
		job.finished = true
		job.terminal = next.Terminal()
		job.moves = next.Record.Moves
		s.finishedAt.CompareAndSwap(0, s.now().UnixNano())
	}
	if s.cache == nil && !job.finished {
		return
	}
	s.persistMu.RLock()
	defer s.persistMu.RUnlock()
	if s.persistClosed {
		return
	}
	select {
	case s.persist <- job:
	default:
		s.logger.Warn("persist_queue_full", zap.Int("moves", next.MoveCount()))
	}
}

func (s *Session) persistLoop() {
	defer s.persistWG.Done()
	for job := range s.persist {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if s.cache != nil {
			if err := s.cache.Save(ctx, job.rec); err != nil {
				s.logger.Warn("snapshot_cache_error", zap.Error(err))
			}
		}
		if job.finished && s.arch != nil {
			s.archive(ctx, job)
		}
		cancel()
	}
}

func (s *Session) archive(ctx context.Context, job persistJob) {
	termination := "ledger"
	switch job.terminal {
	case engine.Checkmate:
		termination = "checkmate"
	case engine.Stalemate:
		termination = "stalemate"
	}
	code, title := engine.Opening(job.moves)
	entry, err := archive.NewEntry(job.rec, termination, code, title, time.Now().UTC())
	if err != nil {
		s.logger.Warn("archive_entry_error", zap.Error(err))
		return
	}
	if err := s.arch.Save(ctx, entry); err != nil {
		s.logger.Warn("archive_save_error", zap.Error(err))
		return
	}
	s.logger.Info("game_archived", zap.String("result", entry.Result), zap.String("termination", termination))
}

// State returns the canonical game state.
func (s *Session) State() reconcile.State { return s.rec.Current() }

// Subscription returns the subscriber's state.
func (s *Session) Subscription() stream.State { return s.sub.State() }

// Refresh forces one authoritative read.
func (s *Session) Refresh(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.sub.Refresh(ctx)
}

// IsMyTurn is recomputed from the latest accepted record on every call.
func (s *Session) IsMyTurn() bool {
	st := s.rec.Current()
	return st.Record != nil && turn.IsMyTurn(st.Record, s.player)
}

// Destinations previews legal targets for the piece on square.
func (s *Session) Destinations(square string) ([]string, error) {
	sq, err := engine.ParseSquare(square)
	if err != nil {
		return nil, err
	}
	st := s.rec.Current()
	targets := engine.LegalDestinations(st.Position, sq)
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.String())
	}
	return out, nil
}

// MoveResult is the outcome of a local move attempt. Nothing is applied locally; a
// submitted move becomes visible once a snapshot includes it.
type MoveResult struct {
	Move    engine.Move
	Pending bool
	Receipt *ledger.Receipt
}

// ProposeMove validates from-to against the canonical position and submits it.
func (s *Session) ProposeMove(ctx context.Context, from, to, promotion string) (MoveResult, error) {
	mv, err := parseMove(from, to, promotion)
	if err != nil {
		return MoveResult{}, err
	}
	return s.propose(ctx, func(st reconcile.State) (engine.Draft, error) {
		return s.drafter.Apply(st.Position, mv)
	})
}

// ProposeNotation accepts SAN or UCI text instead of squares.
func (s *Session) ProposeNotation(ctx context.Context, notation string) (MoveResult, error) {
	return s.propose(ctx, func(st reconcile.State) (engine.Draft, error) {
		mv, err := engine.Decode(st.Position, notation)
		if err != nil {
			return engine.Draft{}, err
		}
		return s.drafter.Apply(st.Position, mv)
	})
}

// Promote finalizes the pending promotion with kind.
func (s *Session) Promote(ctx context.Context, kind string) (MoveResult, error) {
	pt, err := engine.ParsePromotion(kind)
	if err != nil {
		return MoveResult{}, err
	}
	return s.propose(ctx, func(st reconcile.State) (engine.Draft, error) {
		return s.drafter.Promote(st.Position, pt)
	})
}

// CancelPromotion drops the pending promotion.
func (s *Session) CancelPromotion() bool { return s.drafter.Cancel() }

// PendingPromotion returns the outstanding promotion, if any.
func (s *Session) PendingPromotion() (engine.PendingPromotion, bool) { return s.drafter.Pending() }

func (s *Session) propose(ctx context.Context, draft func(reconcile.State) (engine.Draft, error)) (MoveResult, error) {
	if s.closed.Load() {
		return MoveResult{}, ErrClosed
	}
	st := s.rec.Current()
	if st.Record == nil || st.Record.Status != record.StatusActive {
		return MoveResult{}, ErrGameNotActive
	}
	if !turn.IsMyTurn(st.Record, s.player) {
		return MoveResult{}, ErrNotYourTurn
	}
	d, err := draft(st)
	if err != nil {
		return MoveResult{}, err
	}
	if d.Pending {
		s.pendingAt.Store(int64(st.MoveCount()))
		return MoveResult{Pending: true}, nil
	}
	if s.writer == nil {
		return MoveResult{Move: d.Move}, fmt.Errorf("%w: no writer configured", ErrLedger)
	}
	receipt, err := s.writer.SubmitMove(ctx, s.gameID, d.Move.Notation)
	if err != nil {
		s.logger.Warn("submit_move_error", zap.String("move", d.Move.Notation), zap.Error(err))
		return MoveResult{Move: d.Move}, fmt.Errorf("%w: submit move: %w", ErrLedger, err)
	}
	s.logger.Info("move_submitted", zap.String("move", d.Move.Notation), zap.Int("ply", st.MoveCount()+1))
	return MoveResult{Move: d.Move, Receipt: receipt}, nil
}

// EndGame asks the ledger to finish the game. winner is a seated address, or "draw" /
// the draw sentinel.
func (s *Session) EndGame(ctx context.Context, winner string) (*ledger.Receipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	st := s.rec.Current()
	if st.Record == nil || st.Record.Status != record.StatusActive {
		return nil, ErrGameNotActive
	}
	if !turn.IsParticipant(st.Record, s.player) {
		return nil, ErrNotSeated
	}
	w := strings.TrimSpace(winner)
	switch {
	case strings.EqualFold(w, "draw") || record.SameAddress(w, record.DrawSentinel):
		w = record.DrawSentinel
	case turn.SeatOf(st.Record, w) == turn.NoSeat:
		return nil, ErrBadWinner
	}
	if s.writer == nil {
		return nil, fmt.Errorf("%w: no writer configured", ErrLedger)
	}
	r, err := s.writer.EndGame(ctx, s.gameID, w)
	if err != nil {
		return nil, fmt.Errorf("%w: end game: %w", ErrLedger, err)
	}
	s.logger.Info("end_game_submitted", zap.String("winner", w))
	return r, nil
}

func parseMove(from, to, promotion string) (engine.Move, error) {
	f, err := engine.ParseSquare(from)
	if err != nil {
		return engine.Move{}, err
	}
	t, err := engine.ParseSquare(to)
	if err != nil {
		return engine.Move{}, err
	}
	mv := engine.Move{From: f, To: t, Promotion: nchess.NoPieceType}
	if strings.TrimSpace(promotion) != "" {
		if mv.Promotion, err = engine.ParsePromotion(promotion); err != nil {
			return engine.Move{}, err
		}
	}
	return mv, nil
}

func (s *Session) openingFor(moves []string) (string, string) {
	s.openingMu.Lock()
	defer s.openingMu.Unlock()
	if s.opening.count == len(moves) && s.opening.count > 0 {
		return s.opening.code, s.opening.title
	}
	code, title := engine.Opening(moves)
	s.opening = openingCache{count: len(moves), code: code, title: title}
	return code, title
}
