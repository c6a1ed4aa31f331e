package sensor

import (
	"strings"

	"github.com/pkg/errors"
)

// State is the lifecycle state of a sensor. Every sensor is in exactly one state at any instant.
type State string

const (
	// StateShutdown is the initial state; the sensor is not serving reads.
	StateShutdown = State("SHUTDOWN")
	// StateRunning means the sensor is started and serving reads.
	StateRunning = State("RUNNING")
	// StateFault means the sensor hit an unrecoverable error. It stays faulted until its station
	// stops it, which reloads its configuration.
	StateFault = State("FAULT")
)

// States lists every valid state.
var States = []State{StateShutdown, StateRunning, StateFault}

// Valid returns whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateShutdown, StateRunning, StateFault:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState parses a state name case-insensitively.
func ParseState(s string) (State, error) {
	state := State(strings.ToUpper(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", errors.Errorf("unknown sensor state %q", s)
	}
	return state, nil
}

// Matches returns whether s passes filter. A nil filter matches every state.
func (s State) Matches(filter *State) bool {
	return filter == nil || *filter == s
}
