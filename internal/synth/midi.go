package synth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 480
	midiChannel     = 0
	noteVelocity    = 90

	midiMIME = "audio/midi"
)

var errNothingToPlay = errors.New("tune contains no playable notes")

// Encode writes a tune as a single-track Standard MIDI File
func Encode(t *notation.Tune) ([]byte, error) {
	if t == nil || t.NoteCount() == 0 {
		return nil, errNothingToPlay
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tr smf.Track
	if t.Title != "" {
		tr.Add(0, smf.MetaTrackSequenceName(t.Title))
	}
	if num, den, ok := meterParts(t.Meter); ok {
		tr.Add(0, smf.MetaMeter(num, den))
	}
	tr.Add(0, smf.MetaTempo(float64(t.Tempo)))

	var delta uint32
	for _, ev := range t.Events {
		ticks := uint32(math.Round(ev.Beats * ticksPerQuarter))
		if ticks == 0 {
			continue
		}
		if ev.IsRest() {
			delta += ticks
			continue
		}
		for i, p := range ev.Pitches {
			d := uint32(0)
			if i == 0 {
				d = delta
			}
			tr.Add(d, midi.NoteOn(midiChannel, p, noteVelocity))
		}
		for i, p := range ev.Pitches {
			d := uint32(0)
			if i == 0 {
				d = ticks
			}
			tr.Add(d, midi.NoteOff(midiChannel, p))
		}
		delta = 0
	}
	tr.Close(delta)

	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("error adding track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("error writing MIDI file: %w", err)
	}
	return buf.Bytes(), nil
}

func meterParts(meter string) (uint8, uint8, bool) {
	var num, den int
	if _, err := fmt.Sscanf(meter, "%d/%d", &num, &den); err != nil {
		return 0, 0, false
	}
	if num <= 0 || num > 255 || den <= 0 || den > 255 {
		return 0, 0, false
	}
	return uint8(num), uint8(den), true
}

// DataURI encodes MIDI bytes as a base64 data URI
func DataURI(data []byte) string {
	return "data:" + midiMIME + ";base64," + base64.StdEncoding.EncodeToString(data)
}
