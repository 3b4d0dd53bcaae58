package gameview

import (
	"reflect"
	"testing"
)

func TestPairMoves(t *testing.T) {
	got := PairMoves([]string{"e4", "e5", " Nf3 "})
	want := []MovePair{{Number: 1, White: "e4", Black: "e5"}, {Number: 2, White: "Nf3"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
	if len(PairMoves(nil)) != 0 {
		t.Fatal("no moves, no pairs")
	}
}

func TestFormatMoveList(t *testing.T) {
	moves := []string{"e4", "c5", "Nf3", "d6", "d4"}
	if got := FormatMoveList(moves, 0); got != "1. e4 c5 2. Nf3 d6 3. d4" {
		t.Fatalf("full list: %q", got)
	}
	if got := FormatMoveList(moves, 1); got != "3. d4" {
		t.Fatalf("limited list: %q", got)
	}
	if got := FormatMoveList(nil, 0); got != "" {
		t.Fatalf("empty list: %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	if (Error{Code: "not_your_turn"}).Error() != "not_your_turn" {
		t.Fatal("code fallback")
	}
	if (Error{}).Error() == "" {
		t.Fatal("generic fallback")
	}
}
