package workspace

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

// ErrComponentNotFound is returned when the markup to delete is not in the HTML
var ErrComponentNotFound = errors.New("component markup not found")

// Workspace pairs a project's document with its edit history. Each edit takes
// the before snapshot, mutates the document and registers the command as one
// step, so edits and undo/redo never interleave.
type Workspace struct {
	ProjectID string

	mu      sync.Mutex
	doc     *Document
	history *history.Engine
}

// New creates a workspace seeded with initial
func New(projectID string, initial history.Snapshot, maxDepth int, logger *zap.Logger) *Workspace {
	doc := NewDocument(initial)
	return &Workspace{
		ProjectID: projectID,
		doc:       doc,
		history:   history.NewEngine(doc, maxDepth, logger.With(zap.String("project_id", projectID))),
	}
}

// Document returns the editable document
func (w *Workspace) Document() *Document {
	return w.doc
}

// Snapshot returns the current document state
func (w *Workspace) Snapshot() history.Snapshot {
	return w.doc.Snapshot()
}

// ApplyGeneration replaces the code with a generated payload and records an
// agent-generation command.
func (w *Workspace) ApplyGeneration(prompt string, payload generation.Payload, partial bool) history.Command {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.doc.Snapshot()
	w.doc.SetCode(payload.HTML, payload.CSS, payload.JS)
	cmd := history.NewAgentGeneration(before, w.doc.Snapshot(), prompt, partial)
	w.history.Add(cmd)
	return cmd
}

// ApplySurgical replaces one file. It returns false and records nothing when
// the content is unchanged.
func (w *Workspace) ApplySurgical(file history.File, content, description string) (history.Command, bool, error) {
	if !file.Valid() {
		return history.Command{}, false, fmt.Errorf("unknown file %q", file)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.doc.File(file)
	if before == content {
		return history.Command{}, false, nil
	}
	if err := w.doc.SetFile(file, content); err != nil {
		return history.Command{}, false, err
	}
	cmd := history.NewSurgicalEdit(file, before, content, description)
	w.history.Add(cmd)
	return cmd, true, nil
}

// ApplyVisualEdit replaces the document with after
func (w *Workspace) ApplyVisualEdit(after history.Snapshot, description string) (history.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.doc.Snapshot()
	if after.Viewport == "" {
		after.Viewport = before.Viewport
	}
	if err := w.doc.Restore(after); err != nil {
		return history.Command{}, err
	}
	cmd := history.NewVisualEdit(before, after, description)
	w.history.Add(cmd)
	return cmd, nil
}

// AddComponent appends markup and optional styles
func (w *Workspace) AddComponent(name, markup, css string) (history.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.doc.Snapshot()
	after := before
	after.HTML = joinNonEmpty(before.HTML, markup)
	after.CSS = joinNonEmpty(before.CSS, css)
	if err := w.doc.Restore(after); err != nil {
		return history.Command{}, err
	}

	cmd := history.NewComponentAdd(before, after, name)
	w.history.Add(cmd)
	return cmd, nil
}

// DeleteComponent removes the first occurrence of markup from the HTML
func (w *Workspace) DeleteComponent(name, markup string) (history.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.doc.Snapshot()
	if markup == "" || !strings.Contains(before.HTML, markup) {
		return history.Command{}, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
	after := before
	after.HTML = strings.Replace(before.HTML, markup, "", 1)
	if err := w.doc.Restore(after); err != nil {
		return history.Command{}, err
	}

	cmd := history.NewComponentDelete(before, after, name)
	w.history.Add(cmd)
	return cmd, nil
}

// Undo reverts the newest edit. A nil command means there was nothing to undo.
func (w *Workspace) Undo() (*history.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Undo()
}

// Redo reapplies the last undone edit
func (w *Workspace) Redo() (*history.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Redo()
}

// JumpTo moves through history to targetIndex
func (w *Workspace) JumpTo(targetIndex int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.JumpTo(targetIndex)
}

// ClearHistory drops every undo and redo entry
func (w *Workspace) ClearHistory() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history.Clear()
}

// History returns the stacks
func (w *Workspace) History() history.State {
	return w.history.State()
}

// SearchHistory filters undo entries by description or kind
func (w *Workspace) SearchHistory(query string) []history.Command {
	return w.history.Search(query)
}

func joinNonEmpty(base, addition string) string {
	switch {
	case addition == "":
		return base
	case base == "":
		return addition
	default:
		return base + "\n" + addition
	}
}
