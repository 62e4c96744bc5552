package synth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/notation"
)

var (
	errNoVisual   = errors.New("no visual object to play")
	errNotInit    = errors.New("engine is not initialized")
	errNotPrimed  = errors.New("engine is not primed")
	errZeroLength = errors.New("tune has zero length")
)

// Transport is a virtual playback engine: it keeps a play position against
// the tune's duration and reports the natural end of playback.
type Transport struct {
	mu        sync.Mutex
	timeScale float64

	tune    *notation.Tune
	onEnded func()
	midi    []byte
	length  time.Duration

	position  time.Duration
	startedAt time.Time
	timer     *time.Timer
	running   bool
	// bumped on every start/pause/stop so a stale timer never fires onEnded
	generation uint64
}

// Init binds the engine to a rendered tune
func (t *Transport) Init(ctx context.Context, tune *notation.Tune, onEnded func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tune == nil {
		return errNoVisual
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tune = tune
	t.onEnded = onEnded
	return nil
}

// Prime pre-renders the MIDI data and computes the playing time
func (t *Transport) Prime(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tune == nil {
		return errNotInit
	}
	data, err := Encode(t.tune)
	if err != nil {
		return err
	}
	length := time.Duration(float64(t.tune.Duration()) * t.timeScale)
	if length <= 0 {
		return errZeroLength
	}
	t.midi = data
	t.length = length
	return nil
}

// Start begins or resumes playback
func (t *Transport) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.midi == nil {
		return errNotPrimed
	}
	if t.running {
		return nil
	}
	if t.position >= t.length {
		t.position = 0
	}

	t.generation++
	gen := t.generation
	t.running = true
	t.startedAt = time.Now()
	t.timer = time.AfterFunc(t.length-t.position, func() { t.finish(gen) })
	return nil
}

func (t *Transport) finish(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.position = 0
	t.timer = nil
	onEnded := t.onEnded
	t.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

// Pause halts playback, keeping the position
func (t *Transport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	t.halt()
	t.position += time.Since(t.startedAt)
	if t.position > t.length {
		t.position = t.length
	}
	return nil
}

// Stop halts playback and rewinds
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halt()
	t.position = 0
	return nil
}

func (t *Transport) halt() {
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.running = false
}

// Playing reports whether the transport is running
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Position returns the current play position
func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return t.position + time.Since(t.startedAt)
	}
	return t.position
}

// Length returns the scaled playing time, zero before Prime
func (t *Transport) Length() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.length
}
