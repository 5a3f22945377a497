package client

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("ibapi client: invalid state transition")

// State is the connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateClosed || s == StateFailed }

var transitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateClosing, StateFailed},
	StateConnecting:   {StateHandshaking, StateClosing, StateFailed},
	StateHandshaking:  {StateReady, StateClosing, StateFailed},
	StateReady:        {StateClosing, StateFailed},
	StateClosing:      {StateClosed, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
