package embedded

import (
	"embed"
	"io/fs"
)

// Embed the browser assets served under /static
//
//go:embed static
var staticFiles embed.FS

// Static returns the asset tree rooted at the static directory
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// the directory is embedded at build time
		panic(err)
	}
	return sub
}
