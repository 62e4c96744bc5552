package session

import "fmt"

// State is the playback state of one tune
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action drives a playback transition
type Action int

const (
	ActionPlay Action = iota
	ActionPause
	ActionStop
	ActionCompleted // engine-originated natural end of playback
)

func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionPause:
		return "pause"
	case ActionStop:
		return "stop"
	case ActionCompleted:
		return "completed"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Transition returns the state reached by applying a to from
func Transition(from State, a Action) (State, error) {
	switch a {
	case ActionPlay:
		if from == Idle || from == Paused {
			return Playing, nil
		}
	case ActionPause:
		if from == Playing {
			return Paused, nil
		}
	case ActionStop, ActionCompleted:
		return Idle, nil
	}
	return from, &TransitionError{From: from, Action: a}
}

// Controls is the button enablement for a tune card
type Controls struct {
	Play     bool `json:"play"`
	Pause    bool `json:"pause"`
	Stop     bool `json:"stop"`
	Download bool `json:"download"`
}

// ControlsFor derives button enablement from the playback state
func ControlsFor(s State) Controls {
	switch s {
	case Playing:
		return Controls{Pause: true, Stop: true, Download: true}
	case Paused:
		return Controls{Play: true, Stop: true, Download: true}
	default:
		return Controls{Play: true, Download: true}
	}
}
