package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/export"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"github.com/Conceptual-Machines/melodia-api/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tuneA = "X:1\nT:Test\nK:C\nC4|"
	tuneB = "X:1\nK:C\nA2|"
	tuneC = "X:1\nK:G\nGABc|"
)

type fakeGenerator struct {
	texts []string
	err   error
	calls int32
	// generate overrides texts/err when set
	generate func(ctx context.Context, call int32) ([]string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, _ string, _ int) ([]string, error) {
	call := atomic.AddInt32(&g.calls, 1)
	if g.generate != nil {
		return g.generate(ctx, call)
	}
	return g.texts, g.err
}

func (g *fakeGenerator) Endpoint() string { return "http://localhost:8000/generate" }

// fakeRenderer renders every text to one visual handle unless told otherwise
type fakeRenderer struct {
	empty  map[string]bool
	failed map[string]error
}

func (r *fakeRenderer) Render(mountID, text string) ([]*notation.Tune, error) {
	if err := r.failed[text]; err != nil {
		return nil, err
	}
	if r.empty[text] {
		return nil, nil
	}
	return []*notation.Tune{{MountID: mountID, Title: "Test", Key: "C", Meter: "4/4"}}, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	initErr  error
	primeErr error
	startErr error
	onEnded  func()
	starts   int
	pauses   int
	stops    int
}

func (e *fakeEngine) Init(_ context.Context, _ *notation.Tune, onEnded func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = onEnded
	return e.initErr
}

func (e *fakeEngine) Prime(context.Context) error { return e.primeErr }

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return e.startErr
}

func (e *fakeEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses++
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return errors.New("stop is advisory")
}

func (e *fakeEngine) end() {
	e.mu.Lock()
	onEnded := e.onEnded
	e.mu.Unlock()
	onEnded()
}

type fakeSynth struct {
	mu      sync.Mutex
	engines []*fakeEngine
	// next configures the next created engine
	next func(*fakeEngine)
}

func (s *fakeSynth) NewEngine() (synth.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &fakeEngine{}
	if s.next != nil {
		s.next(e)
		s.next = nil
	}
	s.engines = append(s.engines, e)
	return e, nil
}

func (s *fakeSynth) MidiFile(any) (any, error) {
	return nil, errors.New("no midi")
}

func (s *fakeSynth) engine(i int) *fakeEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engines[i]
}

type recorded struct {
	mu        sync.Mutex
	playbacks []string
	downloads []string
}

func (r *recorded) RecordGeneration(context.Context, time.Duration, int, error) {}
func (r *recorded) RecordRender(context.Context, int, int)                      {}
func (r *recorded) RecordPlayback(_ context.Context, _ int, action string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		action += ":error"
	}
	r.playbacks = append(r.playbacks, action)
}
func (r *recorded) RecordDownload(_ context.Context, _ int, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, kind)
}

func newTestController(gen Generator, renderer notation.Renderer, capability synth.Capability) *Controller {
	return NewController(Deps{Generator: gen, Renderer: renderer, Synth: capability})
}

func generated(t *testing.T, texts ...string) (*Controller, *fakeSynth) {
	t.Helper()
	s := &fakeSynth{}
	c := newTestController(&fakeGenerator{texts: texts}, &fakeRenderer{}, s)
	require.NoError(t, c.Generate(context.Background(), "C", 200))
	return c, s
}

func activeIndex(c *Controller) *int {
	if i, ok := c.Active(); ok {
		return &i
	}
	return nil
}

func TestGenerateSingleTune(t *testing.T) {
	c, _ := generated(t, tuneA)

	snap := c.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	require.Len(t, snap.Tunes, 1)
	tv := snap.Tunes[0]
	assert.Equal(t, "Composition #1", tv.Title)
	assert.Equal(t, "tune-0", tv.MountID)
	assert.Equal(t, tuneA, tv.Notation)
	assert.True(t, tv.Playable)
	assert.Equal(t, Idle, tv.State)
	assert.True(t, tv.Controls.Play)
	assert.False(t, tv.Controls.Pause)
	assert.False(t, tv.Controls.Stop)
	assert.Nil(t, snap.Active)
}

func TestGenerateKeepsOrder(t *testing.T) {
	c, _ := generated(t, tuneA, tuneB, tuneC)

	snap := c.Snapshot()
	require.Len(t, snap.Tunes, 3)
	for i, text := range []string{tuneA, tuneB, tuneC} {
		assert.Equal(t, i, snap.Tunes[i].Index)
		assert.Equal(t, text, snap.Tunes[i].Notation)
	}
}

func TestGenerateValidationSendsNothing(t *testing.T) {
	gen := &fakeGenerator{texts: []string{tuneA}}
	c := newTestController(gen, &fakeRenderer{}, &fakeSynth{})
	require.NoError(t, c.Generate(context.Background(), "C", 200))

	err := c.Generate(context.Background(), "   ", 200)
	var validation *generation.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "start_char", validation.Field)

	err = c.Generate(context.Background(), "C", 50)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "length", validation.Field)

	assert.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))
	// validation failures leave the previous tunes in place
	assert.Len(t, c.Snapshot().Tunes, 1)
}

func TestGenerateTransportError(t *testing.T) {
	gen := &fakeGenerator{err: &generation.TransportError{StatusCode: 500}}
	c := newTestController(gen, &fakeRenderer{}, &fakeSynth{})

	err := c.Generate(context.Background(), "C", 200)
	var transport *generation.TransportError
	require.ErrorAs(t, err, &transport)

	snap := c.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "Failed to generate music (HTTP 500)", snap.Message)
	assert.Equal(t, "http://localhost:8000/generate", snap.Endpoint)
	assert.Empty(t, snap.Tunes)
}

func TestGenerateResetsBeforeResponse(t *testing.T) {
	s := &fakeSynth{}
	release := make(chan struct{})
	called := make(chan struct{})
	gen := &fakeGenerator{generate: func(ctx context.Context, call int32) ([]string, error) {
		if call == 1 {
			return []string{tuneA, tuneB}, nil
		}
		close(called)
		<-release
		return []string{tuneC}, nil
	}}
	c := newTestController(gen, &fakeRenderer{}, s)
	require.NoError(t, c.Generate(context.Background(), "C", 200))
	require.NoError(t, c.Play(context.Background(), 0))

	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background(), "D", 200) }()
	<-called

	snap := c.Snapshot()
	assert.Equal(t, StatusGenerating, snap.Status)
	assert.Empty(t, snap.Tunes)
	assert.Nil(t, snap.Active)
	assert.Equal(t, 1, s.engine(0).stops)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, c.Snapshot().Tunes, 1)
}

func TestGenerateSupersededByNewerRequest(t *testing.T) {
	called := make(chan struct{})
	gen := &fakeGenerator{generate: func(ctx context.Context, call int32) ([]string, error) {
		if call == 1 {
			close(called)
			<-ctx.Done()
			return []string{tuneA, tuneB, tuneC}, nil
		}
		return []string{tuneB}, nil
	}}
	c := newTestController(gen, &fakeRenderer{}, &fakeSynth{})

	first := make(chan error, 1)
	go func() { first <- c.Generate(context.Background(), "C", 200) }()
	<-called

	require.NoError(t, c.Generate(context.Background(), "D", 300))
	assert.ErrorIs(t, <-first, ErrSuperseded)

	snap := c.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	require.Len(t, snap.Tunes, 1)
	assert.Equal(t, tuneB, snap.Tunes[0].Notation)
}

func TestRenderIsolatesFailures(t *testing.T) {
	renderer := &fakeRenderer{
		empty:  map[string]bool{tuneB: true},
		failed: map[string]error{tuneC: errors.New("unknown key")},
	}
	c := newTestController(&fakeGenerator{texts: []string{tuneA, tuneB, tuneC}}, renderer, &fakeSynth{})
	require.NoError(t, c.Generate(context.Background(), "C", 200))

	snap := c.Snapshot()
	require.Len(t, snap.Tunes, 3)
	assert.True(t, snap.Tunes[0].Playable)
	assert.Empty(t, snap.Tunes[0].RenderError)

	assert.False(t, snap.Tunes[1].Playable)
	assert.Equal(t, "Could not render notation for this tune.", snap.Tunes[1].RenderError)

	assert.False(t, snap.Tunes[2].Playable)
	assert.Equal(t, "Error rendering music notation: unknown key", snap.Tunes[2].RenderError)

	assert.ErrorIs(t, c.Play(context.Background(), 1), ErrUnplayable)
	assert.Equal(t, Idle, snap.Tunes[1].State)
	require.NoError(t, c.Play(context.Background(), 0))
}

func TestRenderOneEmptyAmongThree(t *testing.T) {
	renderer := &fakeRenderer{empty: map[string]bool{tuneB: true}}
	c := newTestController(nil, renderer, &fakeSynth{})
	require.NoError(t, c.Render(context.Background(), []string{tuneA, tuneB, tuneC}))

	snap := c.Snapshot()
	require.Len(t, snap.Tunes, 3)
	assert.NotEmpty(t, snap.Tunes[1].RenderError)
	require.NoError(t, c.Play(context.Background(), 0))
	require.NoError(t, c.Play(context.Background(), 2))
	assert.Equal(t, 2, *activeIndex(c))
}

func TestRenderCapabilityMissing(t *testing.T) {
	c := newTestController(&fakeGenerator{texts: []string{tuneA}}, nil, &fakeSynth{})

	err := c.Generate(context.Background(), "C", 200)
	assert.ErrorIs(t, err, notation.ErrCapabilityMissing)

	snap := c.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Empty(t, snap.Tunes)
}

func TestPlayStopsPreviousTune(t *testing.T) {
	c, s := generated(t, tuneA, tuneB)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, 0))
	assert.Equal(t, 0, *activeIndex(c))

	require.NoError(t, c.Play(ctx, 1))
	assert.Equal(t, 1, *activeIndex(c))
	assert.Equal(t, 1, s.engine(0).stops)

	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.Tunes[0].State)
	assert.Equal(t, Playing, snap.Tunes[1].State)
	assert.Equal(t, Controls{Pause: true, Stop: true, Download: true}, snap.Tunes[1].Controls)
}

func TestPlayWhilePlayingIsIllegal(t *testing.T) {
	c, _ := generated(t, tuneA)
	require.NoError(t, c.Play(context.Background(), 0))

	err := c.Play(context.Background(), 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 0, *activeIndex(c))
}

func TestPlayFailureRevertsToIdle(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*fakeEngine)
	}{
		{"init", func(e *fakeEngine) { e.initErr = errors.New("no audio context") }},
		{"prime", func(e *fakeEngine) { e.primeErr = errors.New("prime failed") }},
		{"start", func(e *fakeEngine) { e.startErr = errors.New("start failed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := generated(t, tuneA, tuneB)
			ctx := context.Background()
			require.NoError(t, c.Play(ctx, 0))

			s.next = tt.configure
			err := c.Play(ctx, 1)
			var playback *PlaybackError
			require.ErrorAs(t, err, &playback)
			assert.Equal(t, 1, playback.Index)

			snap := c.Snapshot()
			assert.Equal(t, Idle, snap.Tunes[1].State)
			assert.Nil(t, snap.Active)
		})
	}
}

func TestEngineRegisteredOnlyAfterPrime(t *testing.T) {
	c, s := generated(t, tuneA)
	ctx := context.Background()

	s.next = func(e *fakeEngine) { e.primeErr = errors.New("prime failed") }
	require.Error(t, c.Play(ctx, 0))

	require.NoError(t, c.Play(ctx, 0))
	s.mu.Lock()
	assert.Len(t, s.engines, 2)
	s.mu.Unlock()
}

func TestPlayWithoutSynth(t *testing.T) {
	c := newTestController(&fakeGenerator{texts: []string{tuneA}}, &fakeRenderer{}, nil)
	require.NoError(t, c.Generate(context.Background(), "C", 200))

	err := c.Play(context.Background(), 0)
	assert.ErrorIs(t, err, ErrSynthUnavailable)
	var playback *PlaybackError
	assert.ErrorAs(t, err, &playback)
}

func TestPauseClearsActiveAndResumeReusesEngine(t *testing.T) {
	c, s := generated(t, tuneA)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, 0))
	require.NoError(t, c.Pause(ctx, 0))

	snap := c.Snapshot()
	assert.Equal(t, Paused, snap.Tunes[0].State)
	assert.Nil(t, snap.Active)
	assert.Equal(t, Controls{Play: true, Stop: true, Download: true}, snap.Tunes[0].Controls)

	require.NoError(t, c.Play(ctx, 0))
	assert.Equal(t, 0, *activeIndex(c))
	e := s.engine(0)
	assert.Equal(t, 2, e.starts)
	assert.Equal(t, 1, e.pauses)
	s.mu.Lock()
	assert.Len(t, s.engines, 1)
	s.mu.Unlock()
}

func TestPauseRequiresPlaying(t *testing.T) {
	c, _ := generated(t, tuneA)
	assert.ErrorIs(t, c.Pause(context.Background(), 0), ErrIllegalTransition)
}

func TestPausedTuneIsNotStoppedByAnotherPlay(t *testing.T) {
	c, s := generated(t, tuneA, tuneB)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, 0))
	require.NoError(t, c.Pause(ctx, 0))
	require.NoError(t, c.Play(ctx, 1))

	assert.Equal(t, 0, s.engine(0).stops)
	assert.Equal(t, Paused, c.Snapshot().Tunes[0].State)
}

func TestStopClearsActiveUnconditionally(t *testing.T) {
	c, s := generated(t, tuneA, tuneB)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, 0))
	require.NoError(t, c.Stop(ctx, 1))
	assert.Nil(t, activeIndex(c))
	assert.Equal(t, Playing, c.Snapshot().Tunes[0].State)

	require.NoError(t, c.Stop(ctx, 0))
	assert.Equal(t, Idle, c.Snapshot().Tunes[0].State)
	assert.Equal(t, 1, s.engine(0).stops)
}

func TestCompletionClearsActive(t *testing.T) {
	c, s := generated(t, tuneA)
	require.NoError(t, c.Play(context.Background(), 0))

	s.engine(0).end()

	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.Tunes[0].State)
	assert.Nil(t, snap.Active)
}

func TestStaleCompletionKeepsNewActive(t *testing.T) {
	c, s := generated(t, tuneA, tuneB)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, 0))
	require.NoError(t, c.Play(ctx, 1))

	s.engine(0).end()

	snap := c.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, 1, *snap.Active)
	assert.Equal(t, Idle, snap.Tunes[0].State)
	assert.Equal(t, Playing, snap.Tunes[1].State)
}

func TestCompletionAfterRegenerateIsIgnored(t *testing.T) {
	s := &fakeSynth{}
	c := newTestController(&fakeGenerator{texts: []string{tuneA}}, &fakeRenderer{}, s)
	ctx := context.Background()
	require.NoError(t, c.Generate(ctx, "C", 200))
	require.NoError(t, c.Play(ctx, 0))
	old := s.engine(0)

	require.NoError(t, c.Generate(ctx, "C", 200))
	require.NoError(t, c.Play(ctx, 0))

	old.end()

	snap := c.Snapshot()
	assert.Equal(t, Playing, snap.Tunes[0].State)
	assert.Equal(t, 0, *snap.Active)
}

func TestNoSuchTune(t *testing.T) {
	c, _ := generated(t, tuneA)
	ctx := context.Background()

	assert.ErrorIs(t, c.Play(ctx, 1), ErrNoSuchTune)
	assert.ErrorIs(t, c.Pause(ctx, -1), ErrNoSuchTune)
	assert.ErrorIs(t, c.Stop(ctx, 5), ErrNoSuchTune)
	_, err := c.Download(ctx, 3)
	assert.ErrorIs(t, err, ErrNoSuchTune)
	_, err = c.TuneView(3)
	assert.ErrorIs(t, err, ErrNoSuchTune)
}

func TestDownloadFallsBackToNotation(t *testing.T) {
	rec := &recorded{}
	s := &fakeSynth{}
	c := NewController(Deps{
		Generator: &fakeGenerator{texts: []string{tuneA, tuneB}},
		Renderer:  &fakeRenderer{},
		Synth:     s,
		Exporter:  export.NewExporter(s, nil, time.Minute),
		Recorder:  rec,
	})
	ctx := context.Background()
	require.NoError(t, c.Generate(ctx, "C", 200))

	d, err := c.Download(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, export.KindABC, d.Kind)
	data, err := d.Open(c.Blobs())
	require.NoError(t, err)
	assert.Equal(t, tuneB, string(data))
	assert.Equal(t, []string{"abc"}, rec.downloads)
}

func TestDownloadEmptyNotation(t *testing.T) {
	c := newTestController(nil, &fakeRenderer{empty: map[string]bool{"": true}}, nil)
	require.NoError(t, c.Render(context.Background(), []string{""}))

	_, err := c.Download(context.Background(), 0)
	assert.ErrorIs(t, err, export.ErrNoNotation)
}

func TestPlaybackIsRecorded(t *testing.T) {
	rec := &recorded{}
	c := NewController(Deps{
		Generator: &fakeGenerator{texts: []string{tuneA}},
		Renderer:  &fakeRenderer{},
		Synth:     &fakeSynth{},
		Recorder:  rec,
	})
	ctx := context.Background()
	require.NoError(t, c.Generate(ctx, "C", 200))
	require.NoError(t, c.Play(ctx, 0))
	require.NoError(t, c.Pause(ctx, 0))
	require.Error(t, c.Pause(ctx, 0))
	require.NoError(t, c.Stop(ctx, 0))

	assert.Equal(t, []string{"play", "pause", "pause:error", "stop"}, rec.playbacks)
}

func TestCloseStopsEngines(t *testing.T) {
	c, s := generated(t, tuneA)
	require.NoError(t, c.Play(context.Background(), 0))

	c.Close()

	snap := c.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Tunes)
	assert.Equal(t, 1, s.engine(0).stops)
}

func TestNaturalEndWithBuiltinCapabilities(t *testing.T) {
	capability := synth.New(synth.Options{TimeScale: 0.001})
	c := NewController(Deps{
		Generator: &fakeGenerator{texts: []string{tuneA}},
		Renderer:  notation.NewABCRenderer(),
		Synth:     capability,
	})
	ctx := context.Background()
	require.NoError(t, c.Generate(ctx, "C", 200))

	snap := c.Snapshot()
	require.Len(t, snap.Tunes, 1)
	require.True(t, snap.Tunes[0].Playable)
	assert.Equal(t, "Test", c.tunes[0].Visual.Title)

	require.NoError(t, c.Play(ctx, 0))
	assert.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.Active == nil && snap.Tunes[0].State == Idle
	}, 2*time.Second, 5*time.Millisecond)

	d, err := c.Download(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, export.KindMIDI, d.Kind)
}
