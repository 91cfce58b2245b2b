// Package web provides the embedded browser playground served by the run
// server.
//
// The dist/ directory is embedded at build time. If a dist directory exists
// on the filesystem at the development path, it is served instead so the
// page can be edited without rebuilding.
package web

import (
	"embed"
	"io/fs"
	"os"
)

// DefaultDevPath is where GetAssets looks for live assets.
const DefaultDevPath = "./web/dist"

//go:embed dist/*
var assets embed.FS

// GetAssets returns a filesystem containing the playground. devPath names a
// directory to serve instead of the embedded copy; if empty, DefaultDevPath
// is checked. The embedded assets are returned when it does not exist.
func GetAssets(devPath string) fs.FS {
	if devPath == "" {
		devPath = DefaultDevPath
	}

	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}

	// The embedded FS has a "dist/" prefix
	subFS, err := fs.Sub(assets, "dist")
	if err != nil {
		panic("failed to access embedded web assets: " + err.Error())
	}
	return subFS
}
