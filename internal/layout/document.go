// Package layout renders frame sequences into a tiled binder document and
// prints it to PDF.
package layout

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// PageWidthIn is the printable content width, in inches, that tiles share.
const PageWidthIn = 8.2

//go:embed document.html.tmpl
var documentSource string

var documentTemplate = template.Must(template.New("document").Parse(documentSource))

// TileWidth is the width in inches of one tile when itemsPerRow tiles share
// a row.
func TileWidth(itemsPerRow int) float64 {
	if itemsPerRow < 1 {
		itemsPerRow = 1
	}
	return PageWidthIn / float64(itemsPerRow)
}

func formatInches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "in"
}

// Build writes the document for srcs, one tile per source, to w.
func Build(w io.Writer, srcs []string, itemsPerRow int) error {
	tiles := make([]template.URL, len(srcs))
	for i, src := range srcs {
		// file:// URLs are not in html/template's safe scheme list.
		tiles[i] = template.URL(src)
	}
	return documentTemplate.Execute(w, struct {
		Title     string
		TileWidth template.CSS
		Tiles     []template.URL
	}{
		Title:     "video2pdf",
		TileWidth: template.CSS(formatInches(TileWidth(itemsPerRow))),
		Tiles:     tiles,
	})
}

// Document is a rendered layout on disk plus whatever surface printed it.
// It stays alive until Detach.
type Document struct {
	path  string
	tiles int

	mu       sync.Mutex
	release  func()
	detached bool
}

// Render builds the document for srcs and writes it into dir.
func Render(dir string, srcs []string, itemsPerRow int) (*Document, error) {
	var buf bytes.Buffer
	if err := Build(&buf, srcs, itemsPerRow); err != nil {
		return nil, fmt.Errorf("build layout: %w", err)
	}
	p := filepath.Join(dir, "layout-"+uuid.NewString()+".html")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write layout: %w", err)
	}
	return &Document{path: p, tiles: len(srcs)}, nil
}

func (d *Document) Path() string { return d.path }
func (d *Document) Tiles() int   { return d.tiles }

// URL is the file:// URL of the document.
func (d *Document) URL() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(d.path)}).String()
}

// bind ties a release function (closing the print surface) to the document.
// Binding to a detached document releases immediately.
func (d *Document) bind(release func()) {
	d.mu.Lock()
	if d.detached {
		d.mu.Unlock()
		release()
		return
	}
	prev := d.release
	d.release = release
	d.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Detach releases the print surface and removes the file. It reports
// whether this call did the work.
func (d *Document) Detach() bool {
	d.mu.Lock()
	if d.detached {
		d.mu.Unlock()
		return false
	}
	d.detached = true
	release := d.release
	d.release = nil
	d.mu.Unlock()

	if release != nil {
		release()
	}
	_ = os.Remove(d.path)
	return true
}

// Detached reports whether Detach has run.
func (d *Document) Detached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}
