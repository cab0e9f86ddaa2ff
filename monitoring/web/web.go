// Package web serves the status page of the monitoring server.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

// EnvAssetDir names a directory whose files replace the embedded status
// page. The page can then be edited without rebuilding the simulator.
const EnvAssetDir = "DELAYMEM_MONITOR_ASSETS"

//go:embed dist
var dist embed.FS

// Assets returns the files of the status page, read from dir when it is not
// empty.
func Assets(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}

	page, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return page
}

// Handler serves the status page for GET and HEAD requests. Responses are
// marked no-store since the asset directory may change under a running
// server.
func Handler(dir string) http.Handler {
	files := http.FileServer(http.FS(Assets(dir)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

			return
		}

		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
