package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFiles embed.FS

// staticFS serves the UI with static/ as its root.
var staticFS = mustSub(staticFiles, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
