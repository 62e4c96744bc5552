package notation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	defaultTempo = 120 // quarter notes per minute
	quarter      = 0.25
)

// Event is a note, chord or rest. Beats are measured in quarter notes.
type Event struct {
	Pitches []uint8 // MIDI note numbers, empty for a rest
	Beats   float64
	tied    bool
}

// IsRest reports whether the event is silent
func (e Event) IsRest() bool {
	return len(e.Pitches) == 0
}

// Tune is the rendered (visual) form of one ABC tune
type Tune struct {
	MountID    string
	Number     int
	Title      string
	Composer   string
	Meter      string
	Key        string
	UnitLength float64 // fraction of a whole note
	Tempo      int     // quarter notes per minute
	Bars       int
	Events     []Event

	meterRatio float64
}

// TotalBeats returns the length of the tune in quarter notes
func (t *Tune) TotalBeats() float64 {
	var total float64
	for _, ev := range t.Events {
		total += ev.Beats
	}
	return total
}

// Duration returns the playing time at the tune's tempo
func (t *Tune) Duration() time.Duration {
	tempo := t.Tempo
	if tempo <= 0 {
		tempo = defaultTempo
	}
	seconds := t.TotalBeats() * 60 / float64(tempo)
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// NoteCount returns the number of sounding events
func (t *Tune) NoteCount() int {
	n := 0
	for _, ev := range t.Events {
		if !ev.IsRest() {
			n++
		}
	}
	return n
}

// Summary is a one-line description shown under the tune title
func (t *Tune) Summary() string {
	parts := []string{}
	if t.Key != "" {
		parts = append(parts, "Key "+t.Key)
	}
	if t.Meter != "" {
		parts = append(parts, "Meter "+t.Meter)
	}
	parts = append(parts,
		fmt.Sprintf("♩=%d", t.Tempo),
		fmt.Sprintf("%d notes", t.NoteCount()),
		fmt.Sprintf("%d bars", t.Bars),
		formatDuration(t.Duration()),
	)
	return strings.Join(parts, " · ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
