// Package export produces downloadable files for generated tunes: MIDI when
// the synthesis capability can provide it, raw ABC text otherwise.
package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"github.com/Conceptual-Machines/melodia-api/internal/synth"
)

const (
	MIDIContentType = "audio/midi"
	ABCContentType  = "text/plain; charset=utf-8"

	KindMIDI = "mid"
	KindABC  = "abc"

	// DefaultRevokeDelay is how long a binary download stays addressable
	DefaultRevokeDelay = time.Minute
)

var (
	ErrNoNotation = errors.New("No music to download for this tune.")
	// ErrRemoteURI means the download lives elsewhere and must be redirected to
	ErrRemoteURI = errors.New("download is a remote URI")
)

// ExportError reports a download that could not be produced at all
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("Error creating download file: %v", e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Download is a file ready to be saved by the client
type Download struct {
	Filename    string
	ContentType string
	Kind        string // KindMIDI or KindABC
	Href        string // data:, blob: or remote URI; empty when Body is set
	Body        []byte
}

// Exporter builds downloads for tunes
type Exporter struct {
	synth       synth.Capability
	blobs       *BlobStore
	revokeDelay time.Duration
	now         func() time.Time
}

// NewExporter creates an exporter. A nil capability always falls back to ABC.
func NewExporter(capability synth.Capability, blobs *BlobStore, revokeDelay time.Duration) *Exporter {
	if blobs == nil {
		blobs = NewBlobStore()
	}
	if revokeDelay <= 0 {
		revokeDelay = DefaultRevokeDelay
	}
	return &Exporter{
		synth:       capability,
		blobs:       blobs,
		revokeDelay: revokeDelay,
		now:         time.Now,
	}
}

// Blobs returns the store backing binary downloads
func (e *Exporter) Blobs() *BlobStore {
	return e.blobs
}

// Export produces exactly one download for the tune at index
func (e *Exporter) Export(index int, text string, visual *notation.Tune) (*Download, error) {
	if text == "" {
		return nil, ErrNoNotation
	}

	if artifact, ok := Classify(e.extractMIDI(index, text, visual)); ok {
		d := &Download{
			Filename:    e.filename(index, KindMIDI),
			ContentType: MIDIContentType,
			Kind:        KindMIDI,
		}
		switch artifact.Kind {
		case KindURI:
			d.Href = artifact.URI
		case KindBinary:
			d.Href = e.blobs.Create(artifact.Data, MIDIContentType)
			e.blobs.RevokeAfter(d.Href, e.revokeDelay)
		}
		return d, nil
	}

	logger.Debug("MIDI unavailable, exporting ABC text", logger.Fields{"tune_index": index})
	return &Download{
		Filename:    e.filename(index, KindABC),
		ContentType: ABCContentType,
		Kind:        KindABC,
		Body:        []byte(text),
	}, nil
}

// extractMIDI asks the capability for a MIDI file, first from the raw text
// and then from the visual handle. Failures mean "no MIDI".
func (e *Exporter) extractMIDI(index int, text string, visual *notation.Tune) any {
	if e.synth == nil {
		return nil
	}
	result, err := e.midiFile(text)
	if err == nil {
		return result
	}
	logger.Debug("MIDI from notation text failed", logger.Fields{"tune_index": index, "error": err.Error()})
	if visual == nil {
		return nil
	}
	result, err = e.midiFile(visual)
	if err != nil {
		logger.Debug("MIDI from visual object failed", logger.Fields{"tune_index": index, "error": err.Error()})
		return nil
	}
	return result
}

func (e *Exporter) midiFile(source any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("midi generation panicked: %v", r)
		}
	}()
	return e.synth.MidiFile(source)
}

func (e *Exporter) filename(index int, kind string) string {
	return fmt.Sprintf("melodia-%d-%d.%s", index+1, e.now().UnixMilli(), kind)
}

// Open resolves a download to its bytes. Remote URIs return ErrRemoteURI.
func (d *Download) Open(blobs *BlobStore) ([]byte, error) {
	switch {
	case d.Body != nil:
		return d.Body, nil
	case isBlobRef(d.Href):
		data, _, ok := blobs.Get(d.Href)
		if !ok {
			return nil, &ExportError{Err: fmt.Errorf("blob %s was already released", d.Href)}
		}
		return data, nil
	case strings.HasPrefix(d.Href, "data:"):
		data, err := decodeDataURI(d.Href)
		if err != nil {
			return nil, &ExportError{Err: err}
		}
		return data, nil
	case d.Href != "":
		return nil, ErrRemoteURI
	default:
		return nil, &ExportError{Err: errors.New("empty download")}
	}
}

// decodeDataURI handles base64 and percent-encoded data URIs
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, found := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !found {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed base64 data URI: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URI: %w", err)
	}
	return []byte(text), nil
}
