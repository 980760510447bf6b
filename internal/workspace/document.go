package workspace

import (
	"fmt"
	"sync"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

// Document is the editable state of one prototype
type Document struct {
	mu    sync.RWMutex
	state history.Snapshot
}

// NewDocument creates a document holding initial. An empty viewport defaults to desktop.
func NewDocument(initial history.Snapshot) *Document {
	if initial.Viewport == "" {
		initial.Viewport = history.ViewportDesktop
	}
	return &Document{state: initial}
}

// Snapshot returns a copy of the current state
func (d *Document) Snapshot() history.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Restore replaces the whole state. An empty viewport defaults to desktop.
func (d *Document) Restore(snapshot history.Snapshot) error {
	if snapshot.Viewport == "" {
		snapshot.Viewport = history.ViewportDesktop
	}
	if !snapshot.Viewport.Valid() {
		return fmt.Errorf("unknown viewport %q", snapshot.Viewport)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = snapshot
	return nil
}

// SetCode replaces the three code files and keeps selection and viewport
func (d *Document) SetCode(html, css, js string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.HTML, d.state.CSS, d.state.JS = html, css, js
}

// SetFile updates a single code file
func (d *Document) SetFile(file history.File, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch file {
	case history.FileHTML:
		d.state.HTML = content
	case history.FileCSS:
		d.state.CSS = content
	case history.FileJS:
		d.state.JS = content
	default:
		return fmt.Errorf("unknown file %q", file)
	}
	return nil
}

// File returns the content of one code file
func (d *Document) File(file history.File) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch file {
	case history.FileHTML:
		return d.state.HTML
	case history.FileCSS:
		return d.state.CSS
	case history.FileJS:
		return d.state.JS
	}
	return ""
}

// SetSelectedElement records the element picked in the preview
func (d *Document) SetSelectedElement(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.SelectedElement = selector
}

// SetViewport changes the preview size
func (d *Document) SetViewport(viewport history.Viewport) error {
	if !viewport.Valid() {
		return fmt.Errorf("unknown viewport %q", viewport)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Viewport = viewport
	return nil
}
