// Command ledgercheck reads one game from the ledger gateway, replays it and optionally
// watches the push feed for a short window.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/record"
	"github.com/park285/chess-ledger-sync/internal/stream"
	"github.com/park285/chess-ledger-sync/pkg/gameview"
)

func main() {
	_ = godotenv.Load()
	baseURL := os.Getenv("LEDGER_BASE_URL")
	wsURL := os.Getenv("LEDGER_WS_URL")
	gameID := os.Getenv("GAME_ID")
	userID := os.Getenv("X_USER_ID")
	sessionID := os.Getenv("X_SESSION_ID")

	if baseURL == "" || gameID == "" {
		log.Fatal("LEDGER_BASE_URL and GAME_ID are required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if userID != "" {
			m["X-User-Id"] = userID
		}
		if sessionID != "" {
			m["X-Session-Id"] = sessionID
		}
		return m
	}

	client := ledger.NewClient(baseURL,
		ledger.WithHeaderProvider(headers),
		ledger.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := client.ReadGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			log.Fatalf("game %s not found", gameID)
		}
		log.Fatalf("read game error: %v", err)
	}
	summarize(snap, gameID)

	if wsURL == "" {
		log.Println("LEDGER_WS_URL not set; skipping feed check")
		return
	}

	ws := stream.NewWebSocketSource(wsURL)
	ws.SetHeaderProvider(headers)
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	h, err := ws.Subscribe(cctx, gameID,
		func(s *record.Snapshot) {
			fmt.Printf("feed snapshot moves=%d status=%v\n", len(s.Moves), statusOf(s))
		},
		func(err error) {
			log.Printf("feed error: %v", err)
		},
	)
	if err != nil {
		log.Printf("feed subscribe error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = h.Close(closeCtx)
}

func summarize(snap *record.Snapshot, gameID string) {
	rec, err := snap.Validate(gameID)
	if err != nil {
		log.Fatalf("snapshot invalid: %v", err)
	}
	pos, moves, err := engine.Replay(rec.Moves)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	fmt.Printf("game=%s status=%s moves=%d\n", gameID, rec.Status, rec.MoveCount())
	fmt.Printf("white=%s black=%s\n", rec.SeatOne, orDash(rec.SeatTwo))
	if rec.Status == record.StatusFinished {
		if rec.IsDraw() {
			fmt.Println("result=draw")
		} else {
			fmt.Printf("winner=%s\n", rec.Winner)
		}
	}
	fmt.Printf("fen=%s\n", pos.FEN())
	fmt.Printf("terminal=%s to_move=%s\n", engine.Classify(pos), engine.ColorName(pos.Turn()))
	if code, title := engine.Opening(rec.Moves); code != "" {
		fmt.Printf("opening=%s %s\n", code, title)
	}
	if c := engine.Captured(moves); c.Total() > 0 {
		fmt.Printf("captures white=%d black=%d\n", len(c.ByWhite), len(c.ByBlack))
	}
	if rec.Status == record.StatusActive && !rec.StartTime.IsZero() {
		fmt.Printf("elapsed=%s\n", gameview.FormatClock(time.Since(rec.StartTime)))
	}
	if list := gameview.FormatMoveList(rec.Moves, 0); list != "" {
		fmt.Println(list)
	}
	for _, row := range pos.Rows() {
		fmt.Println(row)
	}
}

func statusOf(s *record.Snapshot) any {
	if s.Status == nil {
		return "?"
	}
	return record.Status(*s.Status)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
