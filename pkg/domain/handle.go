package domain

import "fmt"

// HandleState is the lifecycle state of a registered instrument handle.
type HandleState string

const (
	StateDisconnected HandleState = "disconnected"
	StateConnecting   HandleState = "connecting"
	StateReady        HandleState = "ready"
	StateBusy         HandleState = "busy"
	StateFaulted      HandleState = "faulted"
)

// transitions enumerates the legal state machine edges:
// Disconnected -> Connecting -> Ready <-> Busy, and any state -> Faulted.
var transitions = map[HandleState][]HandleState{
	StateDisconnected: {StateConnecting, StateFaulted},
	StateConnecting:   {StateReady, StateFaulted},
	StateReady:        {StateBusy, StateDisconnected, StateFaulted},
	StateBusy:         {StateReady, StateFaulted},
	StateFaulted:      {StateDisconnected},
}

// CanTransition reports whether moving from s to next is a legal edge.
// A Faulted handle never re-enters Ready directly; it must be torn down
// (Faulted -> Disconnected) and re-registered, or pass a health check.
func (s HandleState) CanTransition(next HandleState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Usable reports whether operations may be issued to a handle in this state.
func (s HandleState) Usable() bool {
	return s == StateReady || s == StateBusy
}

// Transition validates and returns the next state.
func (s HandleState) Transition(next HandleState) (HandleState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal handle transition %s -> %s", s, next)
	}
	return next, nil
}
