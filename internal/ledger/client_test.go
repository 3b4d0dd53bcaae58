package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/chess-ledger-sync/internal/record"
)

func serve(t *testing.T, h fasthttp.RequestHandler, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	opts = append([]Option{WithDial(func(string) (net.Conn, error) { return ln.Dial() })}, opts...)
	return NewClient("http://ledger.test/", opts...)
}

func TestReadGame(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/games/7" || !ctx.IsGet() {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		if string(ctx.Request.Header.Peek("X-User-Id")) != "u1" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"gameId":"7","player1":"0x1111111111111111111111111111111111111111","player2":"0x2222222222222222222222222222222222222222","moves":["e4","e5"],"startTime":1700000000,"status":1,"winner":"0x0000000000000000000000000000000000000000"}`)
	}, WithHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "u1", "X-Empty": " "} }))

	snap, err := c.ReadGame(context.Background(), "7")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rec, err := snap.Validate("7")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if rec.MoveCount() != 2 || rec.Status != record.StatusActive {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestReadGameRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		if hits.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"gameId":"7","player1":"0x1111111111111111111111111111111111111111","moves":[],"status":0}`)
	}, WithRetry(3))

	if _, err := c.ReadGame(context.Background(), "7"); err != nil {
		t.Fatalf("read after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("want 3 attempts, got %d", hits.Load())
	}
}

func TestReadGameNotFoundAndClientErrors(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/games/404":
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		default:
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("bad id")
		}
	})
	if _, err := c.ReadGame(context.Background(), "404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	_, err := c.ReadGame(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != fasthttp.StatusBadRequest || apiErr.Body != "bad id" {
		t.Fatalf("want APIError 400, got %v", err)
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	var got moveRequest
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		switch string(ctx.Path()) {
		case "/games/7/moves":
			_ = json.Unmarshal(ctx.PostBody(), &got)
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
		case "/games/7/end":
			ctx.SetBodyString(`{"txHash":"0xabc"}`)
		}
	}, WithRetry(5))

	if _, err := c.SubmitMove(context.Background(), "7", "Nf3"); err == nil {
		t.Fatal("expected error from 502")
	}
	if hits.Load() != 1 || got.Notation != "Nf3" {
		t.Fatalf("move submitted %d times with %+v", hits.Load(), got)
	}
	r, err := c.EndGame(context.Background(), "7", record.DrawSentinel)
	if err != nil || r.TxHash != "0xabc" {
		t.Fatalf("end game: %v %+v", err, r)
	}
}

func TestContextDeadlineWins(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
	}, WithRetry(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ReadGame(ctx, "7"); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != 100*time.Millisecond || backoffDuration(3) != 400*time.Millisecond {
		t.Fatal("unexpected backoff")
	}
	if backoffDuration(10) != backoffDuration(6) {
		t.Fatal("backoff must cap")
	}
}
