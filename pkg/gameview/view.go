// Package gameview holds the presentation DTOs served to the local UI.
package gameview

// View is everything the board UI needs to draw one frame.
type View struct {
	GameID  string `json:"gameId"`
	SeatOne string `json:"seatOne"`
	SeatTwo string `json:"seatTwo,omitempty"`
	Status  string `json:"status"`
	Winner  string `json:"winner,omitempty"`
	Draw    bool   `json:"draw,omitempty"`
	FEN     string `json:"fen"`
	Turn    string `json:"turn"`
	MyColor string `json:"myColor,omitempty"`
	// IsMyTurn is false outside ACTIVE; MyTurnByParity ignores the status.
	IsMyTurn       bool   `json:"isMyTurn"`
	MyTurnByParity bool   `json:"myTurnByParity"`
	Terminal       string `json:"terminal"`
	// Board lists ranks 8 to 1, files a to h; "." marks an empty square.
	Board            []string          `json:"board"`
	PendingPromotion *PendingPromotion `json:"pendingPromotion,omitempty"`
	Moves            []string          `json:"moves"`
	MoveList         []MovePair        `json:"moveList"`
	Opening          *Opening          `json:"opening,omitempty"`
	Stats            Stats             `json:"stats"`
	Mode             string            `json:"mode"`
	Degraded         bool              `json:"degraded,omitempty"`
	Message          string            `json:"message,omitempty"`
}

type Stats struct {
	TotalMoves      int      `json:"totalMoves"`
	Captures        int      `json:"captures"`
	CapturedByWhite []string `json:"capturedByWhite"`
	CapturedByBlack []string `json:"capturedByBlack"`
	ElapsedSeconds  int64    `json:"elapsedSeconds"`
	Elapsed         string   `json:"elapsed"`
	// AvgMoveSeconds is elapsed time over plies, rounded to a tenth.
	AvgMoveSeconds float64 `json:"avgMoveSeconds"`
}

// Frame is the board after a given number of plies, for stepping through history.
type Frame struct {
	Ply      int      `json:"ply"`
	Move     string   `json:"move,omitempty"`
	FEN      string   `json:"fen"`
	Turn     string   `json:"turn"`
	Terminal string   `json:"terminal"`
	Board    []string `json:"board"`
}

type PendingPromotion struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Opening struct {
	ECO   string `json:"eco"`
	Title string `json:"title"`
}

// Destinations answers a legal-move preview for one square.
type Destinations struct {
	Square  string   `json:"square"`
	Targets []string `json:"targets"`
}

// MoveAck is returned after a move was validated and handed to the ledger. The move shows
// up in View.Moves only once a snapshot contains it.
type MoveAck struct {
	Notation string `json:"notation,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
	TxHash   string `json:"txHash,omitempty"`
}

// Error is the JSON body of a failed request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game view error"
}
