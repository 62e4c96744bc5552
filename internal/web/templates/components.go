// Package templates holds the Melodia page and its htmx fragments.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/a-h/templ"
)

// Form holds the values shown in the generation form
type Form struct {
	StartChar string
	Length    int
	MinLength int
	MaxLength int
}

// fragment renders markup built into a strings.Builder in one write
func fragment(build func(b *strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		build(&b)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func esc(s string) string {
	return templ.EscapeString(s)
}

// StatusBadge shows the generation status; it is swapped out-of-band on
// every output update.
func StatusBadge(status session.Status, oob bool) templ.Component {
	return fragment(func(b *strings.Builder) {
		writeStatusBadge(b, status, oob)
	})
}

func writeStatusBadge(b *strings.Builder, status session.Status, oob bool) {
	label := map[session.Status]string{
		session.StatusIdle:       "Idle",
		session.StatusGenerating: "Generating...",
		session.StatusReady:      "Ready",
		session.StatusError:      "Error",
	}[status]
	if label == "" {
		label = string(status)
	}
	b.WriteString(`<span id="status-badge" class="status-badge status-`)
	b.WriteString(esc(string(status)))
	b.WriteString(`"`)
	if oob {
		b.WriteString(` hx-swap-oob="true"`)
	}
	b.WriteString(`>`)
	b.WriteString(esc(label))
	b.WriteString(`</span>`)
}

// Output renders the output area for a session snapshot
func Output(snap session.Snapshot) templ.Component {
	return fragment(func(b *strings.Builder) {
		writeStatusBadge(b, snap.Status, true)
		switch {
		case snap.Status == session.StatusError:
			writeErrorPanel(b, snap.Message, snap.Endpoint)
		case len(snap.Tunes) == 0:
			b.WriteString(`<div class="empty-state"><p>Your composition will appear here.</p></div>`)
		default:
			writeTuneList(b, snap.Tunes, -1, "")
		}
	})
}

// ErrorPanel shows a failed generation with a hint to check the backend
func ErrorPanel(message, endpoint string) templ.Component {
	return fragment(func(b *strings.Builder) {
		writeErrorPanel(b, message, endpoint)
	})
}

func writeErrorPanel(b *strings.Builder, message, endpoint string) {
	b.WriteString(`<div class="empty-state error-panel"><h3>Something went wrong</h3><p>`)
	b.WriteString(esc(message))
	b.WriteString(`</p>`)
	if endpoint != "" {
		b.WriteString(`<p class="hint">Make sure the API server is running at `)
		b.WriteString(esc(endpoint))
		b.WriteString(`</p>`)
	}
	b.WriteString(`</div>`)
}

// TuneList renders every card. The alert, if any, is shown on the card at
// alertIndex.
func TuneList(tunes []session.TuneView, alertIndex int, alert string) templ.Component {
	return fragment(func(b *strings.Builder) {
		writeTuneList(b, tunes, alertIndex, alert)
	})
}

func writeTuneList(b *strings.Builder, tunes []session.TuneView, alertIndex int, alert string) {
	b.WriteString(`<div id="tunes" class="tune-list">`)
	for _, tv := range tunes {
		cardAlert := ""
		if tv.Index == alertIndex {
			cardAlert = alert
		}
		writeCard(b, tv, cardAlert)
	}
	b.WriteString(`</div>`)
}

// Card renders one tune card with its controls and notation mount point
func Card(tv session.TuneView, alert string) templ.Component {
	return fragment(func(b *strings.Builder) {
		writeCard(b, tv, alert)
	})
}

func writeCard(b *strings.Builder, tv session.TuneView, alert string) {
	fmt.Fprintf(b, `<div id="card-%d" class="output-card" data-state="%s"`, tv.Index, esc(tv.State.String()))
	if tv.State == session.Playing {
		// poll so a natural end of playback shows up
		fmt.Fprintf(b, ` hx-get="/htmx/tunes/%d" hx-trigger="every 1s" hx-swap="outerHTML"`, tv.Index)
	}
	b.WriteString(`><div class="output-header"><h3 class="output-title">`)
	b.WriteString(esc(tv.Title))
	b.WriteString(`</h3><div class="actions">`)

	writeControl(b, tv.Index, "play", "▶ Play", tv.Controls.Play)
	writeControl(b, tv.Index, "pause", "⏸ Pause", tv.Controls.Pause)
	writeControl(b, tv.Index, "stop", "⏹ Stop", tv.Controls.Stop)
	if tv.Controls.Download && tv.Notation != "" {
		fmt.Fprintf(b, `<a class="control-btn" id="%s-download" href="/api/v1/tunes/%d/download" download>⬇ Download</a>`,
			esc(tv.MountID), tv.Index)
	} else {
		fmt.Fprintf(b, `<button class="control-btn" id="%s-download" disabled>⬇ Download</button>`, esc(tv.MountID))
	}
	b.WriteString(`</div></div>`)

	if alert != "" {
		b.WriteString(`<div class="alert" role="alert">`)
		b.WriteString(esc(alert))
		b.WriteString(`</div>`)
	}

	fmt.Fprintf(b, `<div id="%s" class="notation">`, esc(tv.MountID))
	if tv.RenderError != "" {
		b.WriteString(`<p class="render-error">`)
		b.WriteString(esc(tv.RenderError))
		b.WriteString(`</p>`)
	} else {
		if tv.Summary != "" {
			b.WriteString(`<p class="summary">`)
			b.WriteString(esc(tv.Summary))
			b.WriteString(`</p>`)
		}
		b.WriteString(`<pre class="abc">`)
		b.WriteString(esc(tv.Notation))
		b.WriteString(`</pre>`)
	}
	b.WriteString(`</div></div>`)
}

func writeControl(b *strings.Builder, index int, action, label string, enabled bool) {
	fmt.Fprintf(b, `<button class="control-btn" id="tune-%d-%s" hx-post="/htmx/tunes/%d/%s" hx-target="#tunes" hx-swap="outerHTML"`,
		index, action, index, action)
	if !enabled {
		b.WriteString(` disabled`)
	}
	b.WriteString(`>`)
	b.WriteString(esc(label))
	b.WriteString(`</button>`)
}
