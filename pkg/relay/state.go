package relay

import "fmt"

// State is a stage of the relay lifecycle.
//
//	Idle ──▶ Streaming ──▶ Flushing ──▶ Terminated
//	             │             │
//	             └─────────────┴──────▶ Failed
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFlushing
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFlushing:
		return "flushing"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

// transitions lists the legal successor states of each state.
var transitions = map[State][]State{
	StateIdle:      {StateStreaming},
	StateStreaming: {StateFlushing, StateFailed},
	StateFlushing:  {StateTerminated, StateFailed},
}

// canTransition reports whether from -> to is a legal transition.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
