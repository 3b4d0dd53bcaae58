package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/park285/chess-ledger-sync/internal/archive"
	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/msgcat"
	"github.com/park285/chess-ledger-sync/internal/record"
	"github.com/park285/chess-ledger-sync/internal/stream"
)

const (
	white = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	black = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

type fakeLedger struct {
	mu        sync.Mutex
	snap      record.Snapshot
	submitted []string
	ended     []string
	submitErr error
}

func (f *fakeLedger) set(status record.Status, winner string, moves ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := uint8(status)
	f.snap = record.Snapshot{GameID: "1", Player1: white, Player2: black, Moves: moves, StartTime: 1700000000, Status: &st, Winner: winner}
	if status == record.StatusWaiting {
		f.snap.Player2 = ""
	}
}

func (f *fakeLedger) ReadGame(context.Context, string) (*record.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.snap
	cp.Moves = append([]string(nil), f.snap.Moves...)
	return &cp, nil
}

func (f *fakeLedger) SubmitMove(_ context.Context, _ string, notation string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, notation)
	return &ledger.Receipt{TxHash: "0xtx"}, nil
}

func (f *fakeLedger) EndGame(_ context.Context, _ string, winner string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, winner)
	return &ledger.Receipt{TxHash: "0xend"}, nil
}

func (f *fakeLedger) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

type memCache struct {
	mu    sync.Mutex
	snap  *record.Snapshot
	saves int
}

func (c *memCache) Load(context.Context, string) (*record.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, nil
}

func (c *memCache) Save(_ context.Context, rec *record.GameRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = record.FromRecord(rec)
	c.saves++
	return nil
}

func (c *memCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func start(t *testing.T, l *fakeLedger, player string, opts ...func(*Options)) *Session {
	t.Helper()
	o := Options{
		GameID: "1",
		Player: player,
		Reader: l,
		Writer: l,
		Stream: stream.Config{PollInterval: 2 * time.Millisecond},
		Logger: zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func waitMoves(t *testing.T, s *Session, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.State()
		return st.Record != nil && st.MoveCount() == n
	}, 2*time.Second, time.Millisecond)
}

func TestProposeMove_GatesOnTurnAndStatus(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusWaiting, "")
	s := start(t, l, white)
	waitMoves(t, s, 0)

	_, err := s.ProposeMove(context.Background(), "e2", "e4", "")
	require.ErrorIs(t, err, ErrGameNotActive)

	l.set(record.StatusActive, "", "e4")
	waitMoves(t, s, 1)
	require.False(t, s.IsMyTurn())
	_, err = s.ProposeMove(context.Background(), "d2", "d4", "")
	require.ErrorIs(t, err, ErrNotYourTurn)
	require.Empty(t, l.submissions())
}

func TestProposeMove_SubmitsWithoutLocalApply(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4")
	s := start(t, l, strings.ToLower(black))
	waitMoves(t, s, 1)
	before := s.State().Position

	res, err := s.ProposeMove(context.Background(), "g8", "f6", "")
	require.NoError(t, err)
	require.Equal(t, "Nf6", res.Move.Notation)
	require.Equal(t, "0xtx", res.Receipt.TxHash)
	require.Equal(t, []string{"Nf6"}, l.submissions())
	require.True(t, s.State().Position.Equal(before), "own move is not applied optimistically")

	_, err = s.ProposeMove(context.Background(), "e7", "e4", "")
	require.ErrorIs(t, err, engine.ErrIllegalMove)

	l.set(record.StatusActive, "", "e4", "Nf6")
	waitMoves(t, s, 2)
	require.False(t, s.IsMyTurn())
}

func TestProposeNotation(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "")
	s := start(t, l, white)
	waitMoves(t, s, 0)

	res, err := s.ProposeNotation(context.Background(), "g1f3")
	require.NoError(t, err)
	require.Equal(t, "Nf3", res.Move.Notation)
	_, err = s.ProposeNotation(context.Background(), "Qh5")
	require.ErrorIs(t, err, engine.ErrBadNotation)
}

func TestSubmitFailureIsReported(t *testing.T) {
	l := &fakeLedger{submitErr: errors.New("nonce too low")}
	l.set(record.StatusActive, "")
	s := start(t, l, white)
	waitMoves(t, s, 0)
	_, err := s.ProposeMove(context.Background(), "e2", "e4", "")
	require.ErrorContains(t, err, "nonce too low")
	require.ErrorIs(t, err, ErrLedger)
}

var promoLine = []string{"a4", "b5", "axb5", "a6", "bxa6", "Bb7", "axb7", "Nc6"}

func TestPromotionFlow(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "", promoLine...)
	s := start(t, l, white)
	waitMoves(t, s, len(promoLine))

	res, err := s.ProposeMove(context.Background(), "b7", "b8", "")
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Empty(t, l.submissions())
	p, ok := s.PendingPromotion()
	require.True(t, ok)
	require.Equal(t, "b8", p.To.String())
	require.Equal(t, "b8", s.View().PendingPromotion.To)

	_, err = s.ProposeMove(context.Background(), "e2", "e4", "")
	require.ErrorIs(t, err, engine.ErrPromotionPending)

	res, err = s.Promote(context.Background(), "queen")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Move.Notation, "b8=Q"))
	require.Equal(t, []string{res.Move.Notation}, l.submissions())
	_, ok = s.PendingPromotion()
	require.False(t, ok)
}

func TestNewSnapshotDropsPendingPromotion(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "", promoLine...)
	s := start(t, l, white)
	waitMoves(t, s, len(promoLine))

	_, err := s.ProposeMove(context.Background(), "b7", "a8", "")
	require.NoError(t, err)
	l.set(record.StatusActive, "", append(append([]string(nil), promoLine...), "e4", "e5")...)
	waitMoves(t, s, len(promoLine)+2)
	_, ok := s.PendingPromotion()
	require.False(t, ok)
}

func TestWarmStartIgnoresStaleLive(t *testing.T) {
	cache := &memCache{}
	rec := &record.GameRecord{GameID: "1", SeatOne: white, SeatTwo: black, Moves: []string{"e4", "e5", "Nf3"}, Status: record.StatusActive}
	cache.snap = record.FromRecord(rec)

	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4")
	s := start(t, l, black, func(o *Options) { o.Cache = cache })

	waitMoves(t, s, 3)
	require.Eventually(t, func() bool { return s.State().MoveCount() == 3 && s.Subscription().Mode == stream.Polling }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, s.State().MoveCount(), "live read with fewer moves is a rollback")
	require.True(t, s.IsMyTurn())
}

func TestFinishedGameIsArchivedAndCached(t *testing.T) {
	cache := &memCache{}
	repo := archive.NewMemoryRepository()
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "f3", "e5", "g4", "Qh4")
	s := start(t, l, white, func(o *Options) {
		o.Cache = cache
		o.Archive = repo
	})
	waitMoves(t, s, 4)
	require.Equal(t, engine.Checkmate, s.State().Terminal())

	l.set(record.StatusFinished, black, "f3", "e5", "g4", "Qh4")
	require.Eventually(t, func() bool {
		e, err := repo.Get(context.Background(), "1")
		return err == nil && e.Result == "black" && e.Termination == "checkmate"
	}, 2*time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return cache.count() >= 2 }, time.Second, time.Millisecond)

	_, err := s.ProposeMove(context.Background(), "a2", "a3", "")
	require.ErrorIs(t, err, ErrGameNotActive)
}

func TestEndGame(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4")
	s := start(t, l, white)
	waitMoves(t, s, 1)

	_, err := s.EndGame(context.Background(), "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
	require.ErrorIs(t, err, ErrBadWinner)
	r, err := s.EndGame(context.Background(), "draw")
	require.NoError(t, err)
	require.Equal(t, "0xend", r.TxHash)
	_, err = s.EndGame(context.Background(), strings.ToLower(black))
	require.NoError(t, err)
	require.Equal(t, []string{record.DrawSentinel, strings.ToLower(black)}, l.ended)

	outsider := start(t, l, "0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD")
	waitMoves(t, outsider, 1)
	_, err = outsider.EndGame(context.Background(), "draw")
	require.ErrorIs(t, err, ErrNotSeated)
}

func TestView(t *testing.T) {
	cat, err := msgcat.New("")
	require.NoError(t, err)
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4", "e5", "Nf3")
	s := start(t, l, black, func(o *Options) { o.Catalog = cat })
	waitMoves(t, s, 3)

	v := s.View()
	require.Equal(t, "1", v.GameID)
	require.Equal(t, "ACTIVE", v.Status)
	require.Equal(t, "black", v.MyColor)
	require.Equal(t, "black", v.Turn)
	require.True(t, v.IsMyTurn)
	require.Equal(t, "none", v.Terminal)
	require.Len(t, v.Board, 8)
	require.Len(t, v.MoveList, 2)
	require.Equal(t, "Nf3", v.MoveList[1].White)
	require.NotNil(t, v.Opening)
	require.Equal(t, "Your move (black).", v.Message)
	require.Equal(t, "polling", v.Mode)

	targets, err := s.Destinations("b8")
	require.NoError(t, err)
	require.Equal(t, []string{"a6", "c6"}, targets)
}

func TestClosedSession(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusActive, "")
	s := start(t, l, white)
	waitMoves(t, s, 0)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, stream.Disconnected, s.Subscription().Mode)

	_, err := s.ProposeMove(context.Background(), "e2", "e4", "")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Refresh(context.Background()), ErrClosed)
	require.ErrorIs(t, s.Start(context.Background()), ErrClosed)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Player: white, Reader: &fakeLedger{}})
	require.Error(t, err)
	_, err = New(Options{GameID: "1", Reader: &fakeLedger{}})
	require.Error(t, err)
	_, err = New(Options{GameID: "1", Player: white})
	require.Error(t, err)
}

func TestViewStatsAndPositions(t *testing.T) {
	var clock atomic.Int64
	clock.Store(1700000095)
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4", "d5", "exd5", "Qxd5")
	s := start(t, l, white, func(o *Options) {
		o.Now = func() time.Time { return time.Unix(clock.Load(), 0) }
	})
	waitMoves(t, s, 4)

	st := s.View().Stats
	require.Equal(t, 4, st.TotalMoves)
	require.Equal(t, 2, st.Captures)
	require.Equal(t, []string{"pawn"}, st.CapturedByWhite)
	require.Equal(t, []string{"pawn"}, st.CapturedByBlack)
	require.Equal(t, int64(95), st.ElapsedSeconds)
	require.Equal(t, "1:35", st.Elapsed)
	require.Equal(t, 23.8, st.AvgMoveSeconds)

	f, err := s.PositionAt(0)
	require.NoError(t, err)
	require.Equal(t, engine.Start().FEN(), f.FEN)
	require.Empty(t, f.Move)
	f, err = s.PositionAt(3)
	require.NoError(t, err)
	require.Equal(t, "exd5", f.Move)
	require.Equal(t, "black", f.Turn)
	require.Len(t, f.Board, 8)
	_, err = s.PositionAt(5)
	require.ErrorIs(t, err, engine.ErrPlyOutOfRange)
	_, err = s.PositionAt(-1)
	require.ErrorIs(t, err, engine.ErrPlyOutOfRange)

	// the clock stops once the game is seen finished
	l.set(record.StatusFinished, white, "e4", "d5", "exd5", "Qxd5")
	require.Eventually(t, func() bool { return s.finishedAt.Load() != 0 }, 2*time.Second, time.Millisecond)
	clock.Add(600)
	require.Equal(t, "1:35", s.View().Stats.Elapsed)
}

func TestView_TurnParityOutsideActive(t *testing.T) {
	l := &fakeLedger{}
	l.set(record.StatusFinished, black, "e4", "e5")
	s := start(t, l, white)
	waitMoves(t, s, 2)

	v := s.View()
	require.True(t, v.MyTurnByParity)
	require.False(t, v.IsMyTurn)
}

type gateCache struct {
	entered chan struct{}
	once    sync.Once
	gate    chan struct{}
}

func (c *gateCache) Load(context.Context, string) (*record.Snapshot, error) { return nil, nil }

func (c *gateCache) Save(ctx context.Context, _ *record.GameRecord) error {
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestCloseAfterExpiredContextStillDrains(t *testing.T) {
	cache := &gateCache{entered: make(chan struct{}), gate: make(chan struct{})}
	l := &fakeLedger{}
	l.set(record.StatusActive, "", "e4")
	s := start(t, l, white, func(o *Options) { o.Cache = cache })

	select {
	case <-cache.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("cache write never started")
	}

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Close(expired))

	close(cache.gate)
	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, s.Close(ctx), "a later Close waits for the drained queue instead of replaying the first error")

	// later snapshots are dropped, not sent on the closed queue
	l.set(record.StatusActive, "", "e4", "e5")
	_, err := s.deliver(mustRead(t, l))
	require.NoError(t, err)
}

func mustRead(t *testing.T, l *fakeLedger) *record.Snapshot {
	t.Helper()
	snap, err := l.ReadGame(context.Background(), "1")
	require.NoError(t, err)
	return snap
}
