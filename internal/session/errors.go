package session

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is matched by every TransitionError
	ErrIllegalTransition = errors.New("illegal playback transition")
	ErrUnplayable        = errors.New("This tune cannot be played (no visual object).")
	ErrNoSuchTune        = errors.New("no such tune")
	ErrSuperseded        = errors.New("generation superseded by a newer request")
	ErrSynthUnavailable  = errors.New("synth not available")
)

// TransitionError reports an action that is not valid in the current state
type TransitionError struct {
	From   State
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a tune that is %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// RenderError is attached to a tune whose notation could not be rendered
type RenderError struct {
	Index int
	Empty bool // the renderer produced no visual handle
	Err   error
}

func (e *RenderError) Error() string {
	if e.Empty || e.Err == nil {
		return "Could not render notation for this tune."
	}
	return "Error rendering music notation: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PlaybackError wraps an engine init, prime or start failure
type PlaybackError struct {
	Index int
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("Error playing music: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
