package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"github.com/Conceptual-Machines/melodia-api/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const abcText = "X:1\nT:Test\nK:C\nC4|"

// fakeSynth returns canned MidiFile results per source type
type fakeSynth struct {
	fromText   func() (any, error)
	fromVisual func() (any, error)
	calls      []string
}

func (f *fakeSynth) NewEngine() (synth.Engine, error) {
	return nil, errors.New("not used")
}

func (f *fakeSynth) MidiFile(source any) (any, error) {
	switch source.(type) {
	case string:
		f.calls = append(f.calls, "text")
		if f.fromText != nil {
			return f.fromText()
		}
	case *notation.Tune:
		f.calls = append(f.calls, "visual")
		if f.fromVisual != nil {
			return f.fromVisual()
		}
	}
	return nil, errors.New("unsupported")
}

func fixedExporter(capability synth.Capability) *Exporter {
	e := NewExporter(capability, NewBlobStore(), time.Hour)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func TestClassify(t *testing.T) {
	anchor := &html.Node{Type: html.ElementNode, Data: "a", DataAtom: atom.A, Attr: []html.Attribute{{Key: "href", Val: "blob:abc"}}}
	wrapper := &html.Node{Type: html.ElementNode, Data: "div"}
	wrapper.AppendChild(anchor)

	tests := []struct {
		name  string
		input any
		kind  ArtifactKind
		uri   string
		ok    bool
	}{
		{"data uri", " data:audio/midi;base64,TVRoZA== ", KindURI, "data:audio/midi;base64,TVRoZA==", true},
		{"blob uri", "blob:1234", KindURI, "blob:1234", true},
		{"html anchor", `<div><a download="x.mid" href="data:audio/midi;base64,AA==">midi</a></div>`, KindURI, "data:audio/midi;base64,AA==", true},
		{"html single quotes", `<a href='blob:42'>x</a>`, KindURI, "blob:42", true},
		{"html without anchor", `<p>nothing here</p>`, 0, "", false},
		{"dom element", wrapper, KindURI, "blob:abc", true},
		{"dom element without anchor", &html.Node{Type: html.ElementNode, Data: "div"}, 0, "", false},
		{"binary", []byte("MThd"), KindBinary, "", true},
		{"empty binary", []byte{}, 0, "", false},
		{"plain string", "hello", 0, "", false},
		{"nil", nil, 0, "", false},
		{"number", 42, 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, ok := Classify(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, art.Kind)
			assert.Equal(t, tt.uri, art.URI)
		})
	}
}

func TestExportBinaryCreatesRevocableBlob(t *testing.T) {
	midi := []byte("MThd-binary")
	e := NewExporter(&fakeSynth{fromText: func() (any, error) { return midi, nil }}, NewBlobStore(), 20*time.Millisecond)

	d, err := e.Export(0, abcText, nil)
	require.NoError(t, err)
	assert.Equal(t, KindMIDI, d.Kind)
	assert.Equal(t, MIDIContentType, d.ContentType)
	assert.True(t, strings.HasPrefix(d.Href, "blob:"))
	assert.True(t, strings.HasPrefix(d.Filename, "melodia-1-"))
	assert.True(t, strings.HasSuffix(d.Filename, ".mid"))

	data, err := d.Open(e.Blobs())
	require.NoError(t, err)
	assert.Equal(t, midi, data)

	assert.Eventually(t, func() bool { return e.Blobs().Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = d.Open(e.Blobs())
	var exportErr *ExportError
	assert.ErrorAs(t, err, &exportErr)
}

func TestExportURI(t *testing.T) {
	e := fixedExporter(&fakeSynth{fromText: func() (any, error) { return "data:audio/midi;base64,TVRoZA==", nil }})

	d, err := e.Export(2, abcText, nil)
	require.NoError(t, err)
	assert.Equal(t, "melodia-3-1700000000000.mid", d.Filename)

	data, err := d.Open(e.Blobs())
	require.NoError(t, err)
	assert.Equal(t, []byte("MThd"), data)
}

func TestExportRemoteURI(t *testing.T) {
	e := fixedExporter(&fakeSynth{fromText: func() (any, error) {
		return `<a href="https://cdn.example.com/t.mid">midi</a>`, nil
	}})

	d, err := e.Export(0, abcText, nil)
	require.NoError(t, err)
	_, err = d.Open(e.Blobs())
	assert.ErrorIs(t, err, ErrRemoteURI)
	assert.Equal(t, "https://cdn.example.com/t.mid", d.Href)
}

func TestExportRetriesWithVisual(t *testing.T) {
	fake := &fakeSynth{
		fromText:   func() (any, error) { return nil, errors.New("text not supported") },
		fromVisual: func() (any, error) { return []byte("MThd"), nil },
	}
	e := fixedExporter(fake)

	d, err := e.Export(0, abcText, &notation.Tune{})
	require.NoError(t, err)
	assert.Equal(t, KindMIDI, d.Kind)
	assert.Equal(t, []string{"text", "visual"}, fake.calls)
}

func TestExportNoRetryWithoutVisual(t *testing.T) {
	fake := &fakeSynth{fromText: func() (any, error) { return nil, errors.New("nope") }}
	e := fixedExporter(fake)

	d, err := e.Export(0, abcText, nil)
	require.NoError(t, err)
	assert.Equal(t, KindABC, d.Kind)
	assert.Equal(t, []string{"text"}, fake.calls)
}

func TestExportFallsBackToABC(t *testing.T) {
	tests := []struct {
		name       string
		capability synth.Capability
	}{
		{"no capability", nil},
		{"unrecognized shape", &fakeSynth{fromText: func() (any, error) { return 42, nil }}},
		{"both attempts fail", &fakeSynth{}},
		{"capability panics", &fakeSynth{fromText: func() (any, error) { panic("boom") }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := fixedExporter(tt.capability)

			d, err := e.Export(0, abcText, &notation.Tune{})
			require.NoError(t, err)
			assert.Equal(t, KindABC, d.Kind)
			assert.Equal(t, "melodia-1-1700000000000.abc", d.Filename)
			assert.Equal(t, ABCContentType, d.ContentType)

			data, err := d.Open(e.Blobs())
			require.NoError(t, err)
			assert.Equal(t, abcText, string(data))
		})
	}
}

func TestExportRequiresNotation(t *testing.T) {
	_, err := fixedExporter(nil).Export(0, "", nil)
	assert.ErrorIs(t, err, ErrNoNotation)
}

func TestExportWithBuiltinSynth(t *testing.T) {
	e := fixedExporter(synth.New(synth.Options{OutputType: synth.OutputLink}))

	d, err := e.Export(0, abcText, nil)
	require.NoError(t, err)
	assert.Equal(t, KindMIDI, d.Kind)

	data, err := d.Open(e.Blobs())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "MThd"))
}

func TestDecodeDataURI(t *testing.T) {
	data, err := decodeDataURI("data:text/plain,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = decodeDataURI("data:audio/midi;base64")
	assert.Error(t, err)
	_, err = decodeDataURI("data:audio/midi;base64,!!!")
	assert.Error(t, err)
}
