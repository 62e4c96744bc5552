package export

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ArtifactKind tags an extracted MIDI artifact
type ArtifactKind int

const (
	KindURI ArtifactKind = iota + 1
	KindBinary
)

// Artifact is a usable MIDI result: either a URI or raw bytes
type Artifact struct {
	Kind ArtifactKind
	URI  string
	Data []byte
}

// URI wraps a link to a MIDI file
func URI(uri string) Artifact {
	return Artifact{Kind: KindURI, URI: uri}
}

// Binary wraps MIDI file bytes
func Binary(data []byte) Artifact {
	return Artifact{Kind: KindBinary, Data: data}
}

var hrefPattern = regexp.MustCompile(`href=(?:"([^"]*)"|'([^']*)')`)

// Classify turns whatever a synthesis capability returned into an Artifact.
// Recognized shapes: data:/blob: URI strings, HTML fragments holding an
// anchor, parsed HTML nodes holding an anchor, and byte slices.
func Classify(v any) (Artifact, bool) {
	switch res := v.(type) {
	case nil:
		return Artifact{}, false
	case string:
		return classifyString(res)
	case *html.Node:
		if href := anchorHref(res); href != "" {
			return URI(href), true
		}
		return Artifact{}, false
	case []byte:
		if len(res) == 0 {
			return Artifact{}, false
		}
		return Binary(res), true
	default:
		return Artifact{}, false
	}
}

func classifyString(s string) (Artifact, bool) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "data:") || strings.HasPrefix(trimmed, "blob:") {
		return URI(trimmed), true
	}
	if !strings.HasPrefix(trimmed, "<") {
		return Artifact{}, false
	}

	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(trimmed), parent)
	if err == nil {
		for _, n := range nodes {
			if href := anchorHref(n); href != "" {
				return URI(href), true
			}
		}
	}

	if m := hrefPattern.FindStringSubmatch(trimmed); m != nil {
		href := m[1]
		if href == "" {
			href = m[2]
		}
		if href != "" {
			return URI(href), true
		}
	}
	return Artifact{}, false
}

// anchorHref finds the first <a href> at or below n
func anchorHref(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		for _, attr := range n.Attr {
			if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
				return strings.TrimSpace(attr.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := anchorHref(c); href != "" {
			return href
		}
	}
	return ""
}
