package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/obslog"
	"github.com/park285/chess-ledger-sync/internal/record"
)

var (
	ErrClosed          = errors.New("stream: subscriber closed")
	ErrNotStarted      = errors.New("stream: subscriber not started")
	ErrDeliveryTimeout = errors.New("stream: no delivery within timeout")
)

const handleCloseTimeout = 5 * time.Second

// Config holds the subscriber's timing. Zero values take the defaults below.
type Config struct {
	GameID              string
	SessionID           string
	PollInterval        time.Duration // 3s
	ResubscribeCooldown time.Duration // 15s
	DeliveryTimeout     time.Duration // 30s
	ReadTimeout         time.Duration // 10s
	MaxPollFailures     int           // 5
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ResubscribeCooldown <= 0 {
		c.ResubscribeCooldown = 15 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 5
	}
	if c.SessionID == "" {
		c.SessionID = c.GameID
	}
	return c
}

type eventKind int

const (
	evStreamSnapshot eventKind = iota
	evStreamError
	evPollResult
	evRefresh
)

type event struct {
	kind  eventKind
	epoch uint64
	snap  *record.Snapshot
	err   error
	reply chan error
}

// Subscriber runs the Disconnected/Subscribing/Streaming/Polling state machine. A single
// loop goroutine owns the mode, the timers and every call into the sink, so push and
// poll deliveries are never applied concurrently.
type Subscriber struct {
	cfg    Config
	source Source // nil means poll only
	reader ledger.Reader
	sink   Sink
	logger *zap.Logger

	events chan event
	sf     singleflight.Group
	// inFlight keeps a poll tick from starting a read while one is outstanding.
	inFlight atomic.Bool

	mu           sync.RWMutex
	mode         Mode
	lastCount    int
	pollFailures int
	degraded     bool
	started      bool

	cbM         sync.RWMutex
	stateCbs    []StateCallback
	degradedCbs []DegradedCallback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// loop-owned
	epoch    uint64
	handle   Handle
	feedQuit chan struct{}
	watchdog *time.Timer
	ticker   *time.Ticker
	cooldown *time.Timer
	lastErr  error
}

// New builds a subscriber. source may be nil to poll only.
func New(cfg Config, source Source, reader ledger.Reader, sink Sink, logger *zap.Logger) *Subscriber {
	cfg = cfg.withDefaults()
	return &Subscriber{
		cfg:    cfg,
		source: source,
		reader: reader,
		sink:   sink,
		logger: obslog.Or(logger).With(zap.String("game_id", cfg.GameID), zap.String("session_id", cfg.SessionID)),
		events: make(chan event, 16),
		mode:   Disconnected,
		stopCh: make(chan struct{}),
	}
}

// OnStateChange registers a callback invoked from the loop goroutine on every transition.
func (s *Subscriber) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.stateCbs = append(s.stateCbs, cb)
}

// OnDegraded registers a callback for sustained poll failure.
func (s *Subscriber) OnDegraded(cb DegradedCallback) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.degradedCbs = append(s.degradedCbs, cb)
}

func (s *Subscriber) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Subscriber) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Mode:                  s.mode,
		LastAcceptedMoveCount: s.lastCount,
		PollInterval:          s.cfg.PollInterval,
		PollFailures:          s.pollFailures,
		Degraded:              s.degraded,
	}
}

// Start launches the loop. It returns immediately; the first transition is to Subscribing,
// or straight to Polling when there is no push source.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isStopping() {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()
	return nil
}

// Close stops the feed, the poll timer and any outstanding read, and waits for all of them.
// No timer fires and the sink is not called after Close returns nil.
func (s *Subscriber) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Refresh performs one read outside the poll schedule and delivers it through the loop.
// It shares the single-flight key with poll ticks.
func (s *Subscriber) Refresh(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if s.isStopping() {
		return ErrClosed
	}
	snap, err := s.read(ctx)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	select {
	case s.events <- event{kind: evRefresh, snap: snap, reply: reply}:
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscriber) run() {
	defer s.wg.Done()
	defer s.teardown()

	if s.source != nil {
		s.subscribe()
	} else {
		s.enterPolling(nil)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case ev := <-s.events:
			s.dispatch(ev)
		case <-timerC(s.watchdog):
			s.watchdog = nil
			s.logger.Warn("stream_delivery_timeout", zap.Duration("timeout", s.cfg.DeliveryTimeout))
			s.enterPolling(ErrDeliveryTimeout)
		case <-tickerC(s.ticker):
			s.pollAsync()
		case <-timerC(s.cooldown):
			s.cooldown = nil
			s.subscribe()
		}
	}
}

func (s *Subscriber) dispatch(ev event) {
	switch ev.kind {
	case evStreamSnapshot:
		if ev.epoch != s.epoch {
			return
		}
		if s.Mode() == Subscribing {
			s.setMode(Streaming)
		}
		s.armWatchdog()
		s.resetFailures()
		s.deliver(ev.snap)
	case evStreamError:
		if ev.epoch != s.epoch {
			return
		}
		s.logger.Warn("stream_error", zap.Stringer("mode", s.Mode()), zap.Error(ev.err))
		s.enterPolling(ev.err)
	case evPollResult:
		if ev.epoch != s.epoch {
			return
		}
		if ev.err != nil {
			s.pollFailed(ev.err)
			return
		}
		s.resetFailures()
		s.deliver(ev.snap)
	case evRefresh:
		ev.reply <- s.deliver(ev.snap)
	}
}

func (s *Subscriber) deliver(snap *record.Snapshot) error {
	if s.sink == nil || snap == nil {
		return nil
	}
	n, err := s.sink.Deliver(snap)
	if err != nil {
		s.logger.Warn("snapshot_delivery_error", zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.lastCount = n
	s.mu.Unlock()
	return nil
}

// subscribe moves to Subscribing and opens a fresh feed.
func (s *Subscriber) subscribe() {
	s.stopTimer(&s.cooldown)
	s.stopTicker()
	s.epoch++
	s.setMode(Subscribing)

	epoch, quit := s.epoch, make(chan struct{})
	onSnap := func(snap *record.Snapshot) {
		s.post(event{kind: evStreamSnapshot, epoch: epoch, snap: snap}, quit)
	}
	onErr := func(err error) {
		if err == nil {
			err = errors.New("stream: feed ended")
		}
		s.post(event{kind: evStreamError, epoch: epoch, err: err}, quit)
	}
	h, err := s.source.Subscribe(s.rootCtx, s.cfg.GameID, onSnap, onErr)
	if err != nil {
		close(quit)
		if s.isStopping() {
			return
		}
		s.logger.Warn("subscribe_error", zap.Error(err))
		s.enterPolling(err)
		return
	}
	s.handle, s.feedQuit = h, quit
	s.armWatchdog()
}

// enterPolling drops the feed and starts fixed-interval reads. The first read is issued
// immediately; resubscription is attempted after the cooldown.
func (s *Subscriber) enterPolling(cause error) {
	s.closeFeed()
	s.stopTimer(&s.watchdog)
	s.epoch++
	s.lastErr = cause
	s.setMode(Polling)

	s.stopTicker()
	s.ticker = time.NewTicker(s.cfg.PollInterval)
	if s.source != nil {
		s.stopTimer(&s.cooldown)
		s.cooldown = time.NewTimer(s.cfg.ResubscribeCooldown)
	}
	s.pollAsync()
}

func (s *Subscriber) pollAsync() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("poll_skipped_in_flight")
		return
	}
	epoch := s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		snap, err := s.read(s.rootCtx)
		s.post(event{kind: evPollResult, epoch: epoch, snap: snap, err: err}, nil)
	}()
}

// read shares one ledger read per session. The read runs under the subscriber's root
// context; ctx only bounds how long this caller waits for it.
func (s *Subscriber) read(ctx context.Context) (*record.Snapshot, error) {
	if s.reader == nil {
		return nil, errors.New("stream: no reader configured")
	}
	s.mu.RLock()
	root := s.rootCtx
	s.mu.RUnlock()
	if root == nil {
		root = context.Background()
	}
	ch := s.sf.DoChan(s.cfg.SessionID, func() (any, error) {
		rctx, cancel := context.WithTimeout(root, s.cfg.ReadTimeout)
		defer cancel()
		return s.reader.ReadGame(rctx, s.cfg.GameID)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read game: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("read game: %w", res.Err)
		}
		snap, _ := res.Val.(*record.Snapshot)
		return snap, nil
	}
}

func (s *Subscriber) pollFailed(err error) {
	s.mu.Lock()
	s.pollFailures++
	n := s.pollFailures
	fire := n >= s.cfg.MaxPollFailures && !s.degraded
	if fire {
		s.degraded = true
	}
	s.mu.Unlock()

	s.logger.Warn("poll_error", zap.Int("consecutive", n), zap.Error(err))
	if !fire {
		return
	}
	s.logger.Error("stream_degraded", zap.Int("consecutive", n), zap.Error(err))
	s.cbM.RLock()
	cbs := append([]DegradedCallback(nil), s.degradedCbs...)
	s.cbM.RUnlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(n, err)
		}
	}
}

func (s *Subscriber) resetFailures() {
	s.mu.Lock()
	recovered := s.degraded
	s.pollFailures = 0
	s.degraded = false
	s.mu.Unlock()
	if recovered {
		s.logger.Info("stream_recovered")
	}
}

// post hands an event to the loop unless the subscriber or the originating feed has stopped.
func (s *Subscriber) post(ev event, quit <-chan struct{}) {
	select {
	case s.events <- ev:
	case <-s.stopCh:
	case <-quit:
	}
}

func (s *Subscriber) closeFeed() {
	if s.feedQuit != nil {
		close(s.feedQuit)
		s.feedQuit = nil
	}
	if s.handle == nil {
		return
	}
	h := s.handle
	s.handle = nil
	ctx, cancel := context.WithTimeout(context.Background(), handleCloseTimeout)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		s.logger.Warn("stream_unsubscribe_error", zap.Error(err))
	}
}

func (s *Subscriber) teardown() {
	s.closeFeed()
	s.stopTimer(&s.watchdog)
	s.stopTimer(&s.cooldown)
	s.stopTicker()
	s.setMode(Disconnected)
}

func (s *Subscriber) armWatchdog() {
	if s.watchdog == nil {
		s.watchdog = time.NewTimer(s.cfg.DeliveryTimeout)
		return
	}
	if !s.watchdog.Stop() {
		select {
		case <-s.watchdog.C:
		default:
		}
	}
	s.watchdog.Reset(s.cfg.DeliveryTimeout)
}

func (s *Subscriber) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Subscriber) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Subscriber) setMode(m Mode) {
	s.mu.Lock()
	from := s.mode
	s.mode = m
	s.mu.Unlock()
	if from == m {
		return
	}
	s.logger.Info("stream_state", zap.Stringer("from", from), zap.Stringer("to", m))

	s.cbM.RLock()
	cbs := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(from, m)
		}
	}
}

func (s *Subscriber) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
