package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".wasm": "application/wasm",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".html": "text/html; charset=utf-8",
	".ico":  "image/x-icon",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".map":  "application/json",
	".txt":  "text/plain; charset=utf-8",
}

// ContentType returns the response content type for a bundle file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

type staticHandler struct {
	dir    string
	index  string
	prefix string
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if h.prefix != "" {
		rest, ok := strings.CutPrefix(name, h.prefix)
		if !ok || (rest != "" && rest[0] != '/') {
			h.serveIndex(w, r)
			return
		}
		name = path.Clean("/" + rest)
	}

	if name == "/" || !h.serveFile(w, r, strings.TrimPrefix(name, "/")) {
		h.serveIndex(w, r)
	}
}

func (h *staticHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	if !h.serveFile(w, r, h.index) {
		http.NotFound(w, r)
	}
}

// serveFile writes name from the bundle dir and reports whether it existed.
func (h *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	if !fs.ValidPath(name) {
		return false
	}
	f, err := os.Open(filepath.Join(h.dir, filepath.FromSlash(name)))
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	w.Header().Set("Content-Type", ContentType(name))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}
