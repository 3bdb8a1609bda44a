package client

import "strconv"

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateResolvingRoom
	StateConnecting
	StateAuthenticating
	StateLive
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateResolvingRoom:  "resolving_room",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateLive:           "live",
	StateClosing:        "closing",
	StateClosed:         "closed",
}

// String returns the state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}
