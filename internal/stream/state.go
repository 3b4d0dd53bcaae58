package stream

import "time"

// Mode is the subscriber's connection state.
type Mode int

const (
	Disconnected Mode = iota
	Subscribing
	Streaming
	Polling
)

func (m Mode) String() string {
	switch m {
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Polling:
		return "polling"
	default:
		return "disconnected"
	}
}

// State is a point-in-time view of the subscriber.
type State struct {
	Mode                  Mode
	LastAcceptedMoveCount int
	PollInterval          time.Duration
	PollFailures          int
	Degraded              bool
}

type StateCallback func(from, to Mode)

// DegradedCallback fires once per streak when consecutive poll failures reach the limit.
type DegradedCallback func(failures int, lastErr error)
