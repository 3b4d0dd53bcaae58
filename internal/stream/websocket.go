package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-ledger-sync/internal/record"
)

// HeaderProvider allows injecting handshake headers (e.g., X-User-*)
type HeaderProvider func() map[string]string

// Frame is one message on the ledger's push feed.
type Frame struct {
	Type   string           `json:"type"` // subscribe | snapshot | error
	GameID string           `json:"gameId,omitempty"`
	Game   *record.Snapshot `json:"game,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// WebSocketSource subscribes to GAME snapshots over a WebSocket. Reconnecting is left to
// the Subscriber; a failed feed reports once through onError and stops.
type WebSocketSource struct {
	wsURL          string
	headerProvider HeaderProvider
	dialTimeout    time.Duration
	pingInterval   time.Duration
}

func NewWebSocketSource(wsURL string) *WebSocketSource {
	return &WebSocketSource{
		wsURL:        wsURL,
		dialTimeout:  10 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

// SetHeaderProvider allows injecting headers into the WS handshake.
func (w *WebSocketSource) SetHeaderProvider(h HeaderProvider) { w.headerProvider = h }

// SetPingInterval overrides the keepalive period.
func (w *WebSocketSource) SetPingInterval(d time.Duration) {
	if d > 0 {
		w.pingInterval = d
	}
}

func (w *WebSocketSource) Subscribe(ctx context.Context, gameID string, onSnapshot SnapshotFunc, onError ErrorFunc) (Handle, error) {
	target, err := w.feedURL(gameID)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, w.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      w.buildHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	if err := wsjson.Write(dialCtx, conn, Frame{Type: "subscribe", GameID: gameID}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	f := &wsFeed{
		conn:         conn,
		onSnapshot:   onSnapshot,
		onError:      onError,
		stopCh:       make(chan struct{}),
		rootCtx:      rootCtx,
		rootCancel:   rootCancel,
		pingInterval: w.pingInterval,
	}
	f.wg.Add(2)
	go f.listen()
	go f.pingLoop()
	return f, nil
}

func (w *WebSocketSource) feedURL(gameID string) (string, error) {
	u, err := url.Parse(w.wsURL)
	if err != nil {
		return "", fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("gameId", gameID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (w *WebSocketSource) buildHeaders() http.Header {
	hdr := http.Header{}
	if w.headerProvider == nil {
		return hdr
	}
	for k, v := range w.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

type wsFeed struct {
	conn   *websocket.Conn
	connM  sync.Mutex
	failed sync.Once

	onSnapshot SnapshotFunc
	onError    ErrorFunc

	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func (f *wsFeed) listen() {
	defer f.wg.Done()
	for {
		var msg Frame
		if err := wsjson.Read(f.rootCtx, f.conn, &msg); err != nil {
			f.fail(fmt.Errorf("read feed: %w", err))
			return
		}
		switch msg.Type {
		case "snapshot":
			if msg.Game != nil && f.onSnapshot != nil {
				f.onSnapshot(msg.Game)
			}
		case "error":
			f.fail(fmt.Errorf("feed error: %s", msg.Error))
			return
		}
	}
}

func (f *wsFeed) pingLoop() {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := f.conn.Ping(ctx)
			cancel()
			if err == nil {
				consecutivePingFailures = 0
				continue
			}
			consecutivePingFailures++
			if consecutivePingFailures >= 2 {
				f.fail(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// fail reports the first error unless the feed is being closed, then drops the connection.
func (f *wsFeed) fail(err error) {
	f.failed.Do(func() {
		if !f.isStopping() && f.onError != nil {
			f.onError(err)
		}
		f.stopOnce.Do(func() { close(f.stopCh) })
		f.rootCancel()
		_ = f.closeConn(websocket.StatusGoingAway, "feed failed")
	})
}

func (f *wsFeed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	_ = f.closeConn(websocket.StatusNormalClosure, "close")
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (f *wsFeed) closeConn(code websocket.StatusCode, reason string) error {
	f.connM.Lock()
	defer f.connM.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.Close(code, reason)
}

func (f *wsFeed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}
