package history

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind identifies the edit a command records
type Kind string

const (
	KindVisualEdit      Kind = "visual-edit"
	KindSurgicalEdit    Kind = "surgical-edit"
	KindAgentGeneration Kind = "agent-generation"
	KindComponentAdd    Kind = "component-add"
	KindComponentDelete Kind = "component-delete"
)

// Viewport is the preview size the editor shows
type Viewport string

const (
	ViewportMobile  Viewport = "mobile"
	ViewportTablet  Viewport = "tablet"
	ViewportDesktop Viewport = "desktop"
)

// Valid reports whether v is mobile, tablet or desktop
func (v Viewport) Valid() bool {
	return v == ViewportMobile || v == ViewportTablet || v == ViewportDesktop
}

// File names one of the three code files of a prototype
type File string

const (
	FileHTML File = "html"
	FileCSS  File = "css"
	FileJS   File = "js"
)

// Valid reports whether f is html, css or js
func (f File) Valid() bool {
	return f == FileHTML || f == FileCSS || f == FileJS
}

const descriptionPromptLimit = 50

// Snapshot is the full editor state a command can restore
type Snapshot struct {
	HTML            string   `json:"html"`
	CSS             string   `json:"css"`
	JS              string   `json:"js"`
	SelectedElement string   `json:"selectedElement,omitempty"`
	Viewport        Viewport `json:"viewport"`
}

// Document is the editable state commands are applied to
type Document interface {
	Snapshot() Snapshot
	Restore(snapshot Snapshot) error
	SetFile(file File, content string) error
}

// Command is a reversible record of one edit. Snapshot-based kinds carry
// Before/After; surgical edits carry a single file's before and after text.
type Command struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`

	Before *Snapshot `json:"-"`
	After  *Snapshot `json:"-"`

	File       File   `json:"file,omitempty"`
	BeforeText string `json:"-"`
	AfterText  string `json:"-"`
}

func newCommand(kind Kind, description string) Command {
	return Command{
		ID:          uuid.NewString(),
		Kind:        kind,
		Timestamp:   time.Now(),
		Description: description,
	}
}

// NewVisualEdit records a change made in the visual editor
func NewVisualEdit(before, after Snapshot, description string) Command {
	cmd := newCommand(KindVisualEdit, description)
	cmd.Before, cmd.After = &before, &after
	return cmd
}

// NewSurgicalEdit records a targeted change to one file
func NewSurgicalEdit(file File, before, after, description string) Command {
	cmd := newCommand(KindSurgicalEdit, description)
	cmd.File = file
	cmd.BeforeText, cmd.AfterText = before, after
	return cmd
}

// NewAgentGeneration records a generated prototype. Partial generations say so
// in the description.
func NewAgentGeneration(before, after Snapshot, prompt string, partial bool) Command {
	label := "Generated"
	if partial {
		label = "Generated (partial)"
	}
	cmd := newCommand(KindAgentGeneration, fmt.Sprintf("%s: %s", label, shorten(prompt, descriptionPromptLimit)))
	cmd.Before, cmd.After = &before, &after
	return cmd
}

// NewComponentAdd records an inserted component
func NewComponentAdd(before, after Snapshot, name string) Command {
	cmd := newCommand(KindComponentAdd, "Added component: "+name)
	cmd.Before, cmd.After = &before, &after
	return cmd
}

// NewComponentDelete records a removed component
func NewComponentDelete(before, after Snapshot, name string) Command {
	cmd := newCommand(KindComponentDelete, "Deleted component: "+name)
	cmd.Before, cmd.After = &before, &after
	return cmd
}

// Apply performs the forward effect of cmd on doc
func Apply(doc Document, cmd Command) error {
	switch cmd.Kind {
	case KindSurgicalEdit:
		return doc.SetFile(cmd.File, cmd.AfterText)
	case KindVisualEdit, KindAgentGeneration, KindComponentAdd, KindComponentDelete:
		if cmd.After == nil {
			return fmt.Errorf("command %s has no after snapshot", cmd.ID)
		}
		return doc.Restore(*cmd.After)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// Revert undoes the effect of cmd on doc
func Revert(doc Document, cmd Command) error {
	switch cmd.Kind {
	case KindSurgicalEdit:
		return doc.SetFile(cmd.File, cmd.BeforeText)
	case KindVisualEdit, KindAgentGeneration, KindComponentAdd, KindComponentDelete:
		if cmd.Before == nil {
			return fmt.Errorf("command %s has no before snapshot", cmd.ID)
		}
		return doc.Restore(*cmd.Before)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
