package gameview

import (
	"fmt"
	"math"
	"time"
)

// FormatClock renders d as m:ss; hours fold into minutes.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// AverageMove is elapsed over plies in seconds, one decimal. Zero plies yields zero.
func AverageMove(elapsed time.Duration, plies int) float64 {
	if plies <= 0 || elapsed <= 0 {
		return 0
	}
	avg := elapsed.Seconds() / float64(plies)
	return math.Round(avg*10) / 10
}

// MoveIndex maps a numbered move and side to its ply offset: 1. e4 is 0, 1... e5 is 1.
func MoveIndex(number int, black bool) int {
	i := (number - 1) * 2
	if black {
		i++
	}
	return i
}
