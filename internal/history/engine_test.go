package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memDoc struct {
	state   Snapshot
	failing bool
	// rejectHTML makes Restore fail for snapshots with this HTML
	rejectHTML string
}

func (d *memDoc) Snapshot() Snapshot { return d.state }

func (d *memDoc) Restore(s Snapshot) error {
	if d.failing || (d.rejectHTML != "" && s.HTML == d.rejectHTML) {
		return errors.New("document is read-only")
	}
	d.state = s
	return nil
}

func (d *memDoc) SetFile(file File, content string) error {
	if d.failing {
		return errors.New("document is read-only")
	}
	switch file {
	case FileHTML:
		d.state.HTML = content
	case FileCSS:
		d.state.CSS = content
	case FileJS:
		d.state.JS = content
	default:
		return fmt.Errorf("unknown file %q", file)
	}
	return nil
}

// edit applies html to doc and records it the way callers do
func edit(e *Engine, doc *memDoc, html string) Command {
	before := doc.Snapshot()
	after := before
	after.HTML = html
	doc.state = after
	cmd := NewVisualEdit(before, after, "set "+html)
	e.Add(cmd)
	return cmd
}

func ids(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.ID
	}
	return out
}

func TestEngineNewCommandDiscardsRedo(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())

	a := edit(e, doc, "A")
	edit(e, doc, "B")
	_, err := e.Undo()
	require.NoError(t, err)
	assert.Equal(t, "A", doc.state.HTML)

	c := edit(e, doc, "C")

	assert.Empty(t, e.RedoStack())
	assert.Equal(t, []string{a.ID, c.ID}, ids(e.History()))
	assert.False(t, e.CanRedo())
}

func TestEngineUndoRedoRoundTrip(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())

	edit(e, doc, "A")
	edit(e, doc, "B")

	undone, err := e.Undo()
	require.NoError(t, err)
	require.NotNil(t, undone)
	assert.Equal(t, "set B", undone.Description)
	assert.Equal(t, "A", doc.state.HTML)
	assert.True(t, e.CanRedo())

	redone, err := e.Redo()
	require.NoError(t, err)
	require.NotNil(t, redone)
	assert.Equal(t, undone.ID, redone.ID)
	assert.Equal(t, "B", doc.state.HTML)
	assert.False(t, e.CanRedo())
}

func TestEngineEmptyStacksAreNoOps(t *testing.T) {
	doc := &memDoc{state: Snapshot{HTML: "keep"}}
	e := NewEngine(doc, 0, zap.NewNop())

	cmd, err := e.Undo()
	assert.NoError(t, err)
	assert.Nil(t, cmd)

	cmd, err = e.Redo()
	assert.NoError(t, err)
	assert.Nil(t, cmd)

	assert.Equal(t, "keep", doc.state.HTML)
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
}

func TestEngineEvictsOldestPastDepth(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, DefaultMaxDepth, zap.NewNop())

	first := edit(e, doc, "0")
	for i := 1; i <= DefaultMaxDepth; i++ {
		edit(e, doc, fmt.Sprint(i))
	}

	history := e.History()
	require.Len(t, history, DefaultMaxDepth)
	assert.NotContains(t, ids(history), first.ID)

	for e.CanUndo() {
		_, err := e.Undo()
		require.NoError(t, err)
	}
	assert.Equal(t, "0", doc.state.HTML, "undoing everything stops at the evicted entry's after state")
	assert.Len(t, e.RedoStack(), DefaultMaxDepth)
}

func TestEngineFailedRevertLeavesStacks(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())
	edit(e, doc, "A")

	doc.failing = true
	cmd, err := e.Undo()
	require.Error(t, err)
	assert.Nil(t, cmd)
	assert.Len(t, e.History(), 1)
	assert.Empty(t, e.RedoStack())
}

func TestEngineJumpTo(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())
	for _, html := range []string{"A", "B", "C", "D"} {
		edit(e, doc, html)
	}

	steps, err := e.JumpTo(1)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Equal(t, "B", doc.state.HTML)
	assert.Len(t, e.RedoStack(), 2)

	steps, err = e.JumpTo(3)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Equal(t, "D", doc.state.HTML)

	steps, err = e.JumpTo(-1)
	require.NoError(t, err)
	assert.Equal(t, 4, steps)
	assert.Equal(t, "", doc.state.HTML)

	_, err = e.JumpTo(4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = e.JumpTo(-2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestEngineJumpToRollsBackOnFailure(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())
	var want []string
	for _, html := range []string{"A", "B", "C", "D"} {
		want = append(want, edit(e, doc, html).ID)
	}

	doc.rejectHTML = "A"
	steps, err := e.JumpTo(-1)
	require.Error(t, err)
	assert.Equal(t, 0, steps)
	assert.Equal(t, "D", doc.state.HTML)
	assert.Equal(t, want, ids(e.History()))
	assert.Empty(t, e.RedoStack())

	doc.rejectHTML = ""
	_, err = e.JumpTo(0)
	require.NoError(t, err)
	doc.rejectHTML = "D"
	steps, err = e.JumpTo(3)
	require.Error(t, err)
	assert.Equal(t, 0, steps)
	assert.Equal(t, "A", doc.state.HTML)
	assert.Len(t, e.History(), 1)
	assert.Len(t, e.RedoStack(), 3)
}

func TestEngineSearch(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())
	e.Add(NewAgentGeneration(Snapshot{}, Snapshot{HTML: "x"}, "todo app", false))
	e.Add(NewSurgicalEdit(FileCSS, "", "a{}", "Make the header blue"))
	e.Add(NewComponentAdd(Snapshot{}, Snapshot{}, "Header"))

	matches := e.Search("HEADER")
	require.Len(t, matches, 2)
	assert.Equal(t, KindComponentAdd, matches[0].Kind)
	assert.Equal(t, KindSurgicalEdit, matches[1].Kind)

	assert.Len(t, e.Search("agent-generation"), 1)
	assert.Len(t, e.Search(""), 3)
}

func TestEngineClear(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 0, zap.NewNop())
	edit(e, doc, "A")
	edit(e, doc, "B")
	_, _ = e.Undo()

	e.Clear()

	state := e.State()
	assert.Empty(t, state.Undo)
	assert.Empty(t, state.Redo)
	assert.Equal(t, -1, state.CurrentIndex)
	assert.Equal(t, "A", doc.state.HTML, "clearing history does not touch the document")
}

func TestEngineConcurrentAdds(t *testing.T) {
	doc := &memDoc{}
	e := NewEngine(doc, 1000, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Add(NewSurgicalEdit(FileJS, "", fmt.Sprint(i), "edit"))
		}(i)
	}
	wg.Wait()
	assert.Len(t, e.History(), 20)
}

func TestSurgicalCommandTouchesOneFile(t *testing.T) {
	doc := &memDoc{state: Snapshot{HTML: "h", CSS: "old", JS: "j"}}
	cmd := NewSurgicalEdit(FileCSS, "old", "new", "recolor")

	require.NoError(t, Apply(doc, cmd))
	assert.Equal(t, Snapshot{HTML: "h", CSS: "new", JS: "j"}, doc.state)

	require.NoError(t, Revert(doc, cmd))
	assert.Equal(t, Snapshot{HTML: "h", CSS: "old", JS: "j"}, doc.state)
}

func TestAgentGenerationDescription(t *testing.T) {
	long := strings.Repeat("p", 60)

	cmd := NewAgentGeneration(Snapshot{}, Snapshot{}, long, false)
	assert.Equal(t, "Generated: "+strings.Repeat("p", 50)+"...", cmd.Description)

	partial := NewAgentGeneration(Snapshot{}, Snapshot{}, "short", true)
	assert.Equal(t, "Generated (partial): short", partial.Description)
	assert.NotEmpty(t, partial.ID)
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	err := Apply(&memDoc{}, Command{Kind: "teleport"})
	assert.Error(t, err)
}
