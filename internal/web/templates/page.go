package templates

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/a-h/templ"
)

// Page is the full Melodia page
func Page(form Form, snap session.Snapshot) templ.Component {
	return fragment(func(b *strings.Builder) {
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		b.WriteString(`<title>Melodia</title>`)
		b.WriteString(`<script src="https://unpkg.com/htmx.org@1.9.12"></script>`)
		b.WriteString(`<link rel="stylesheet" href="/static/melodia.css">`)
		b.WriteString(`</head><body><div class="container">`)

		b.WriteString(`<header class="output-header"><h1>Melodia</h1>`)
		writeStatusBadge(b, snap.Status, false)
		b.WriteString(`</header>`)

		b.WriteString(`<form class="controls-card" hx-post="/htmx/generate" hx-target="#output" hx-swap="innerHTML" hx-disabled-elt="#generate-btn">`)
		b.WriteString(`<label for="startChar">Starting character</label> `)
		fmt.Fprintf(b, `<input id="startChar" name="start_char" maxlength="1" required value="%s"> `, esc(form.StartChar))
		b.WriteString(`<label for="length">Length <span id="lengthValue">`)
		fmt.Fprintf(b, `%d</span></label> `, form.Length)
		fmt.Fprintf(b, `<input id="length" name="length" type="range" min="%d" max="%d" step="50" value="%d" oninput="document.getElementById('lengthValue').textContent=this.value"> `,
			form.MinLength, form.MaxLength, form.Length)
		b.WriteString(`<button id="generate-btn" type="submit"><span class="generate-label">Generate Music</span><span class="generating-label">Generating...</span></button>`)
		b.WriteString(`</form>`)

		b.WriteString(`<main id="output" class="output">`)
		switch {
		case snap.Status == session.StatusError:
			writeErrorPanel(b, snap.Message, snap.Endpoint)
		case len(snap.Tunes) == 0:
			b.WriteString(`<div class="empty-state"><p>Your composition will appear here.</p></div>`)
		default:
			writeTuneList(b, snap.Tunes, -1, "")
		}
		b.WriteString(`</main></div></body></html>`)
	})
}
