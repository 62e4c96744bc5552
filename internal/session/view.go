package session

import "fmt"

// TuneView is the read-only projection of a tune used by the UI and API
type TuneView struct {
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	MountID     string   `json:"mount_id"`
	Notation    string   `json:"notation"`
	Summary     string   `json:"summary,omitempty"`
	Key         string   `json:"key,omitempty"`
	Meter       string   `json:"meter,omitempty"`
	Playable    bool     `json:"playable"`
	RenderError string   `json:"render_error,omitempty"`
	State       State    `json:"state"`
	Controls    Controls `json:"controls"`
}

// Snapshot is a consistent view of the whole session
type Snapshot struct {
	Status   Status     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Endpoint string     `json:"endpoint,omitempty"`
	Active   *int       `json:"active"`
	Tunes    []TuneView `json:"tunes"`
}

// Title is the card title of the tune at index
func Title(index int) string {
	return fmt.Sprintf("Composition #%d", index+1)
}

func (t *Tune) view() TuneView {
	v := TuneView{
		Index:    t.Index,
		Title:    Title(t.Index),
		MountID:  MountID(t.Index),
		Notation: t.Notation,
		Playable: t.Playable(),
		State:    t.State,
		Controls: ControlsFor(t.State),
	}
	if t.Visual != nil {
		v.Summary = t.Visual.Summary()
		v.Key = t.Visual.Key
		v.Meter = t.Visual.Meter
	}
	if t.RenderErr != nil {
		v.RenderError = t.RenderErr.Error()
	}
	return v
}

// Snapshot returns the current session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Status:   c.status,
		Message:  c.message,
		Endpoint: c.Endpoint(),
		Tunes:    make([]TuneView, 0, len(c.tunes)),
	}
	if c.active != noActive {
		active := c.active
		s.Active = &active
	}
	for _, t := range c.tunes {
		s.Tunes = append(s.Tunes, t.view())
	}
	return s
}

// TuneView returns the view of one tune
func (c *Controller) TuneView(index int) (TuneView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.tune(index)
	if err != nil {
		return TuneView{}, err
	}
	return t.view(), nil
}
