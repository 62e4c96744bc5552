// Package notation parses ABC tunes into playable visual handles.
package notation

import "errors"

// ErrCapabilityMissing is returned when no rendering capability is configured
var ErrCapabilityMissing = errors.New("notation rendering library not loaded")

// Renderer turns notation text into visual handles for a mount point
type Renderer interface {
	Render(mountID, text string) ([]*Tune, error)
}

// ABCRenderer is the built-in ABC renderer
type ABCRenderer struct{}

// NewABCRenderer creates the built-in renderer
func NewABCRenderer() *ABCRenderer {
	return &ABCRenderer{}
}

// Render parses text and tags every resulting tune with the mount point
func (r *ABCRenderer) Render(mountID, text string) ([]*Tune, error) {
	tunes, err := Parse(text)
	if err != nil {
		return nil, err
	}
	for _, t := range tunes {
		t.MountID = mountID
	}
	return tunes, nil
}
