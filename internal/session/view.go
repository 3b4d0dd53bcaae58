package session

import (
	"github.com/park285/chess-ledger-sync/internal/engine"
	"github.com/park285/chess-ledger-sync/internal/record"
	"github.com/park285/chess-ledger-sync/internal/turn"
	"github.com/park285/chess-ledger-sync/pkg/gameview"
)

// View assembles the presentation state from the latest accepted record.
func (s *Session) View() gameview.View {
	st := s.rec.Current()
	sub := s.sub.State()

	v := gameview.View{
		GameID:   s.gameID,
		FEN:      st.Position.FEN(),
		Turn:     engine.ColorName(st.Position.Turn()),
		Terminal: st.Terminal().String(),
		Board:    st.Position.Rows(),
		Moves:    []string{},
		Mode:     sub.Mode.String(),
		Degraded: sub.Degraded,
		Status:   "UNKNOWN",
	}
	if rec := st.Record; rec != nil {
		v.SeatOne = rec.SeatOne
		v.SeatTwo = rec.SeatTwo
		v.Status = rec.Status.String()
		v.Winner = rec.Winner
		v.Draw = rec.IsDraw()
		v.Moves = append(v.Moves, rec.Moves...)
		v.MyColor = engine.ColorName(turn.ColorOf(rec, s.player))
		v.MyTurnByParity = turn.IsMyTurn(rec, s.player)
		v.IsMyTurn = rec.Status == record.StatusActive && v.MyTurnByParity
	}
	v.Stats = s.stats(st)
	v.MoveList = gameview.PairMoves(v.Moves)
	if code, title := s.openingFor(v.Moves); code != "" {
		v.Opening = &gameview.Opening{ECO: code, Title: title}
	}
	if p, ok := s.drafter.Pending(); ok {
		v.PendingPromotion = &gameview.PendingPromotion{From: p.From.String(), To: p.To.String()}
	}
	v.Message = s.message(st.Record, v, sub.PollFailures)
	return v
}

func (s *Session) message(rec *record.GameRecord, v gameview.View, failures int) string {
	if s.cat == nil || rec == nil {
		return ""
	}
	if v.Degraded {
		return s.cat.Text("stream.degraded", map[string]any{"Failures": failures}, "")
	}
	switch rec.Status {
	case record.StatusWaiting:
		return s.cat.Text("status.waiting", map[string]any{"GameID": rec.GameID}, "")
	case record.StatusFinished:
		if rec.IsDraw() {
			return s.cat.Text("status.finished_draw", nil, "")
		}
		return s.cat.Text("status.finished_win", map[string]any{"Winner": rec.Winner}, "")
	}
	if v.PendingPromotion != nil {
		return s.cat.Text("promotion.pending", map[string]any{"From": v.PendingPromotion.From, "To": v.PendingPromotion.To}, "")
	}
	side := v.Turn
	switch v.Terminal {
	case engine.Checkmate.String():
		return s.cat.Text("status.checkmate", map[string]any{"Winner": opposite(side)}, "")
	case engine.Stalemate.String():
		return s.cat.Text("status.stalemate", nil, "")
	case engine.Check.String():
		return s.cat.Text("status.check", map[string]any{"Side": side}, "")
	}
	if v.IsMyTurn {
		return s.cat.Text("turn.mine", map[string]any{"Color": v.MyColor}, "")
	}
	if v.MyColor != "" {
		return s.cat.Text("turn.theirs", map[string]any{"Opponent": opposite(v.MyColor)}, "")
	}
	return s.cat.Text("turn.spectator", map[string]any{"Side": side}, "")
}

func opposite(color string) string {
	switch color {
	case "white":
		return "black"
	case "black":
		return "white"
	}
	return ""
}
