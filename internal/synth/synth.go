// Package synth provides the synthesis capability: per-tune playback engines
// and MIDI file generation.
package synth

import (
	"context"
	"fmt"
	"html"

	"github.com/Conceptual-Machines/melodia-api/internal/notation"
)

// OutputType selects the shape MidiFile returns
type OutputType string

const (
	OutputBinary  OutputType = "binary"  // []byte
	OutputEncoded OutputType = "encoded" // data URI string
	OutputLink    OutputType = "link"    // HTML anchor string
)

// Engine plays one tune
type Engine interface {
	Init(ctx context.Context, tune *notation.Tune, onEnded func()) error
	Prime(ctx context.Context) error
	Start(ctx context.Context) error
	Pause() error
	Stop() error
}

// Capability is what the session needs from a synthesizer
type Capability interface {
	NewEngine() (Engine, error)
	MidiFile(source any) (any, error)
}

// Options configures the built-in synthesizer
type Options struct {
	OutputType OutputType
	// TimeScale multiplies playback durations, 1 is real time
	TimeScale float64
}

// Synth is the built-in synthesizer
type Synth struct {
	opts Options
}

// New creates a synthesizer, defaulting to binary output in real time
func New(opts Options) *Synth {
	if opts.OutputType == "" {
		opts.OutputType = OutputBinary
	}
	if opts.TimeScale <= 0 {
		opts.TimeScale = 1
	}
	return &Synth{opts: opts}
}

// NewEngine creates an uninitialized playback engine
func (s *Synth) NewEngine() (Engine, error) {
	return &Transport{timeScale: s.opts.TimeScale}, nil
}

// MidiFile renders ABC text or a rendered tune to MIDI in the configured shape
func (s *Synth) MidiFile(source any) (any, error) {
	var tune *notation.Tune
	switch src := source.(type) {
	case string:
		tunes, err := notation.Parse(src)
		if err != nil {
			return nil, err
		}
		if len(tunes) == 0 {
			return nil, errNothingToPlay
		}
		tune = tunes[0]
	case *notation.Tune:
		tune = src
	default:
		return nil, fmt.Errorf("unsupported MIDI source %T", source)
	}

	data, err := Encode(tune)
	if err != nil {
		return nil, err
	}

	switch s.opts.OutputType {
	case OutputEncoded:
		return DataURI(data), nil
	case OutputLink:
		return fmt.Sprintf(`<a download="melodia.mid" href="%s">download midi</a>`, html.EscapeString(DataURI(data))), nil
	default:
		return data, nil
	}
}
