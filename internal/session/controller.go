// Package session owns the state of one browser session: the generated
// tunes, their per-tune playback state and the single active index.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/export"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"github.com/Conceptual-Machines/melodia-api/internal/synth"
)

// noActive marks that no tune is audibly playing
const noActive = -1

// Status is the generation status shown by the status badge
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Generator fetches notation texts from the generation backend
type Generator interface {
	Generate(ctx context.Context, startChar string, length int) ([]string, error)
	Endpoint() string
}

// Recorder receives domain metrics
type Recorder interface {
	RecordGeneration(ctx context.Context, duration time.Duration, tunes int, err error)
	RecordRender(ctx context.Context, rendered, failed int)
	RecordPlayback(ctx context.Context, index int, action string, err error)
	RecordDownload(ctx context.Context, index int, kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(context.Context, time.Duration, int, error) {}
func (nopRecorder) RecordRender(context.Context, int, int)                      {}
func (nopRecorder) RecordPlayback(context.Context, int, string, error)          {}
func (nopRecorder) RecordDownload(context.Context, int, string)                 {}

// Tune is one generated tune and its playback sub-state
type Tune struct {
	Index     int
	Notation  string
	Visual    *notation.Tune // nil when rendering failed
	RenderErr *RenderError
	State     State

	engine synth.Engine // created on first play
}

// Playable reports whether the tune has a visual handle
func (t *Tune) Playable() bool {
	return t.Visual != nil
}

// Deps are the collaborators of a Controller. Renderer and Synth may be nil
// when the capability is not available.
type Deps struct {
	Generator Generator
	Renderer  notation.Renderer
	Synth     synth.Capability
	Exporter  *export.Exporter
	Recorder  Recorder
}

// Controller is the single owner of a session's state
type Controller struct {
	mu sync.Mutex

	generator Generator
	renderer  notation.Renderer
	synth     synth.Capability
	exporter  *export.Exporter
	recorder  Recorder

	tunes   []*Tune
	active  int
	status  Status
	message string

	// epoch identifies the latest generation; older results are discarded
	epoch          uint64
	cancelInFlight context.CancelFunc
	lastUsed       time.Time
}

// NewController creates an empty session
func NewController(deps Deps) *Controller {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewExporter(deps.Synth, nil, 0)
	}
	return &Controller{
		generator: deps.Generator,
		renderer:  deps.Renderer,
		synth:     deps.Synth,
		exporter:  deps.Exporter,
		recorder:  deps.Recorder,
		active:    noActive,
		status:    StatusIdle,
		lastUsed:  time.Now(),
	}
}

// MountID is the notation mount point of the tune at index
func MountID(index int) string {
	return fmt.Sprintf("tune-%d", index)
}

// Endpoint returns the generation backend URL, used in error hints
func (c *Controller) Endpoint() string {
	if c.generator == nil {
		return ""
	}
	return c.generator.Endpoint()
}

// Generate requests new tunes and replaces the session's tunes with them.
// A newer call supersedes an in-flight one, whose result is discarded with
// ErrSuperseded.
func (c *Controller) Generate(ctx context.Context, startChar string, length int) error {
	if err := generation.Validate(startChar, length); err != nil {
		return err
	}

	c.mu.Lock()
	c.touch()
	c.reset()
	if c.cancelInFlight != nil {
		c.cancelInFlight()
	}
	c.epoch++
	epoch := c.epoch
	genCtx, cancel := context.WithCancel(ctx)
	c.cancelInFlight = cancel
	c.status = StatusGenerating
	c.message = ""
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	texts, err := c.generator.Generate(genCtx, startChar, length)
	duration := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		logger.Warn("Discarding superseded generation", logger.Fields{
			"start_char": startChar,
			"length":     length,
		})
		return ErrSuperseded
	}
	c.cancelInFlight = nil
	c.recorder.RecordGeneration(ctx, duration, len(texts), err)

	if err != nil {
		c.fail(err)
		return err
	}
	if err := c.render(ctx, texts); err != nil {
		c.fail(err)
		return err
	}
	c.status = StatusReady
	return nil
}

// Render builds the session's tunes from notation texts, isolating
// per-tune render failures.
func (c *Controller) Render(ctx context.Context, texts []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.reset()
	if err := c.render(ctx, texts); err != nil {
		c.fail(err)
		return err
	}
	c.status = StatusReady
	return nil
}

func (c *Controller) render(ctx context.Context, texts []string) error {
	if c.renderer == nil {
		return notation.ErrCapabilityMissing
	}

	tunes := make([]*Tune, len(texts))
	failed := 0
	for i, text := range texts {
		t := &Tune{Index: i, Notation: text, State: Idle}
		visual, err := c.renderOne(i, text)
		if err != nil {
			t.RenderErr = err
			failed++
			logger.Warn("Tune could not be rendered", logger.Fields{
				"tune_index": i,
				"error":      err.Error(),
			})
		} else {
			t.Visual = visual
		}
		tunes[i] = t
	}

	c.tunes = tunes
	c.recorder.RecordRender(ctx, len(texts)-failed, failed)
	return nil
}

func (c *Controller) renderOne(index int, text string) (visual *notation.Tune, renderErr *RenderError) {
	defer func() {
		if r := recover(); r != nil {
			visual, renderErr = nil, &RenderError{Index: index, Err: fmt.Errorf("%v", r)}
		}
	}()

	visuals, err := c.renderer.Render(MountID(index), text)
	if err != nil {
		return nil, &RenderError{Index: index, Err: err}
	}
	if len(visuals) == 0 || visuals[0] == nil {
		return nil, &RenderError{Index: index, Empty: true}
	}
	return visuals[0], nil
}

// reset clears all tunes and the active index, stopping engines best-effort.
// Caller holds c.mu.
func (c *Controller) reset() {
	for _, t := range c.tunes {
		if t.engine != nil {
			if err := t.engine.Stop(); err != nil {
				logger.Debug("Ignoring stop error during reset", logger.Fields{"tune_index": t.Index, "error": err.Error()})
			}
		}
	}
	c.tunes = nil
	c.active = noActive
}

func (c *Controller) fail(err error) {
	c.status = StatusError
	c.message = err.Error()
}

// Play starts or resumes the tune at index, stopping any other active tune
func (c *Controller) Play(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	err := c.play(ctx, index)
	c.recorder.RecordPlayback(ctx, index, ActionPlay.String(), err)
	return err
}

func (c *Controller) play(ctx context.Context, index int) error {
	t, err := c.tune(index)
	if err != nil {
		return err
	}
	if !t.Playable() {
		return ErrUnplayable
	}
	if _, err := Transition(t.State, ActionPlay); err != nil {
		return err
	}

	if c.active != noActive && c.active != index {
		c.stopActive()
	}

	if t.engine == nil {
		engine, err := c.newEngine(ctx, t)
		if err != nil {
			t.State = Idle
			return &PlaybackError{Index: index, Err: err}
		}
		t.engine = engine
	}

	if err := t.engine.Start(ctx); err != nil {
		t.State = Idle
		logger.Warn("Playback failed to start", logger.Fields{"tune_index": index, "error": err.Error()})
		return &PlaybackError{Index: index, Err: err}
	}

	t.State = Playing
	c.active = index
	return nil
}

// stopActive stops the currently active tune, ignoring engine errors
func (c *Controller) stopActive() {
	prev := c.tunes[c.active]
	if prev.engine != nil {
		if err := prev.engine.Stop(); err != nil {
			logger.Debug("Ignoring stop error for previous tune", logger.Fields{"tune_index": prev.Index, "error": err.Error()})
		}
	}
	prev.State = Idle
	c.active = noActive
}

// newEngine creates, initializes and primes an engine for t
func (c *Controller) newEngine(ctx context.Context, t *Tune) (engine synth.Engine, err error) {
	if c.synth == nil {
		return nil, ErrSynthUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			engine, err = nil, fmt.Errorf("engine panicked: %v", r)
		}
	}()

	engine, err = c.synth.NewEngine()
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, ErrSynthUnavailable
	}
	if err := engine.Init(ctx, t.Visual, c.completionHandler(t)); err != nil {
		return nil, err
	}
	if err := engine.Prime(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

// completionHandler returns the natural end-of-playback callback for t
func (c *Controller) completionHandler(t *Tune) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		// the tune list may have been replaced since the engine started
		if t.Index >= len(c.tunes) || c.tunes[t.Index] != t {
			return
		}
		t.State, _ = Transition(t.State, ActionCompleted)
		if c.active == t.Index {
			c.active = noActive
		}
		logger.Debug("Playback finished", logger.Fields{"tune_index": t.Index})
	}
}

// Pause pauses a playing tune. Pausing releases the active index.
func (c *Controller) Pause(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	err := c.pause(index)
	c.recorder.RecordPlayback(ctx, index, ActionPause.String(), err)
	return err
}

func (c *Controller) pause(index int) error {
	t, err := c.tune(index)
	if err != nil {
		return err
	}
	next, err := Transition(t.State, ActionPause)
	if err != nil {
		return err
	}
	if t.engine == nil {
		return &PlaybackError{Index: index, Err: ErrSynthUnavailable}
	}
	if err := t.engine.Pause(); err != nil {
		logger.Warn("Pause failed", logger.Fields{"tune_index": index, "error": err.Error()})
		return &PlaybackError{Index: index, Err: err}
	}
	t.State = next
	c.active = noActive
	return nil
}

// Stop halts a tune and rewinds it. The active index is always cleared.
func (c *Controller) Stop(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	err := c.stop(index)
	c.recorder.RecordPlayback(ctx, index, ActionStop.String(), err)
	return err
}

func (c *Controller) stop(index int) error {
	t, err := c.tune(index)
	if err != nil {
		return err
	}
	if t.engine != nil {
		if err := t.engine.Stop(); err != nil {
			logger.Warn("Stop failed", logger.Fields{"tune_index": index, "error": err.Error()})
		}
	}
	t.State, _ = Transition(t.State, ActionStop)
	c.active = noActive
	return nil
}

// Download exports the tune at index as MIDI, or as ABC text when MIDI is
// unavailable.
func (c *Controller) Download(ctx context.Context, index int) (*export.Download, error) {
	c.mu.Lock()
	t, err := c.tune(index)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.touch()
	text, visual := t.Notation, t.Visual
	c.mu.Unlock()

	d, err := c.exporter.Export(index, text, visual)
	if err != nil {
		if !errors.Is(err, export.ErrNoNotation) {
			logger.Error("Download failed", err, logger.Fields{"tune_index": index})
		}
		return nil, err
	}
	c.recorder.RecordDownload(ctx, index, d.Kind)
	return d, nil
}

// Blobs returns the store holding binary downloads
func (c *Controller) Blobs() *export.BlobStore {
	return c.exporter.Blobs()
}

// Active returns the index of the playing tune
func (c *Controller) Active() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != noActive
}

// Close stops every engine and cancels an in-flight generation
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelInFlight != nil {
		c.cancelInFlight()
		c.cancelInFlight = nil
	}
	c.epoch++
	c.reset()
	c.status = StatusIdle
}

// LastUsed reports when the session was last touched
func (c *Controller) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *Controller) touch() {
	c.lastUsed = time.Now()
}

// tune looks up a tune; caller holds c.mu
func (c *Controller) tune(index int) (*Tune, error) {
	if index < 0 || index >= len(c.tunes) {
		return nil, ErrNoSuchTune
	}
	return c.tunes[index], nil
}
