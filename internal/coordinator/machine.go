package coordinator

import (
	"time"

	"github.com/justchokingaround/vguide/internal/policy"
)

// State is the coordinated playback state of the visible surface
type State int

const (
	StateUnset State = iota
	StatePlaying
	StatePaused
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unset"
	}
}

// Input is what drives a state transition
type Input int

const (
	// InputPlayed is a play attempt the surface accepted
	InputPlayed Input = iota
	// InputRejected is a play attempt the surface refused
	InputRejected
	// InputSkipped is a play attempt policy refused before touching the surface
	InputSkipped
	// InputUserPaused is an explicit pause command
	InputUserPaused
	// InputContextPaused is a pause caused by the viewing context (orientation, swap)
	InputContextPaused
	// InputPauseObserved is a pause event from the visible surface that was acknowledged
	InputPauseObserved
	// InputPlayObserved is a playing event from the visible surface
	InputPlayObserved
	// InputStreamFailed is an error on the visible surface
	InputStreamFailed
)

var inputNames = map[Input]string{
	InputPlayed:        "played",
	InputRejected:      "rejected",
	InputSkipped:       "skipped",
	InputUserPaused:    "user_paused",
	InputContextPaused: "context_paused",
	InputPauseObserved: "pause_observed",
	InputPlayObserved:  "play_observed",
	InputStreamFailed:  "stream_failed",
}

// String returns the string representation of Input
func (i Input) String() string {
	if name, ok := inputNames[i]; ok {
		return name
	}
	return "unknown"
}

// transitions is the full table. Missing entries keep the current state.
var transitions = map[State]map[Input]State{
	StateUnset: {
		InputPlayed:       StatePlaying,
		InputPlayObserved: StatePlaying,
		InputUserPaused:   StatePaused,
	},
	StatePlaying: {
		InputRejected:      StatePaused,
		InputSkipped:       StatePaused,
		InputUserPaused:    StatePaused,
		InputContextPaused: StatePaused,
		InputPauseObserved: StatePaused,
		InputStreamFailed:  StatePaused,
	},
	StatePaused: {
		InputPlayed:       StatePlaying,
		InputPlayObserved: StatePlaying,
	},
}

// Machine holds the playback state. Transitions only happen through Fire.
type Machine struct {
	state State
}

// NewMachine creates a machine in StateUnset
func NewMachine() *Machine {
	return &Machine{state: StateUnset}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Fire applies input and returns the previous state and whether it changed
func (m *Machine) Fire(in Input) (State, bool) {
	from := m.state
	to, ok := transitions[from][in]
	if !ok || to == from {
		return from, false
	}
	m.state = to
	return from, true
}

// PauseReaction is how the coordinator answers a pause event from the visible surface
type PauseReaction int

const (
	// PauseSuppressed swallows the event; it is a delayed echo
	PauseSuppressed PauseReaction = iota
	// PauseResume restarts playback because the user still wants it playing
	PauseResume
	// PauseAcknowledged accepts the pause as the new state
	PauseAcknowledged
)

// String returns the string representation of PauseReaction
func (r PauseReaction) String() string {
	switch r {
	case PauseSuppressed:
		return "suppressed"
	case PauseResume:
		return "resume"
	default:
		return "acknowledged"
	}
}

// ReactToPause decides what a reactive pause event means at now
func ReactToPause(clock *policy.Clock, now time.Time) PauseReaction {
	if clock.Active(policy.IgnorePause, now) {
		return PauseSuppressed
	}
	if clock.Intent() == policy.IntentPlaying {
		return PauseResume
	}
	return PauseAcknowledged
}
