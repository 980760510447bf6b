package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

func TestApplyGenerationIsUndoable(t *testing.T) {
	ws := New("p1", history.Snapshot{HTML: "<p>old</p>", SelectedElement: "p"}, 0, zap.NewNop())

	cmd := ws.ApplyGeneration("a todo app", generation.Payload{HTML: "<ul></ul>", CSS: "ul{}", JS: "init()"}, false)
	assert.Equal(t, history.KindAgentGeneration, cmd.Kind)
	assert.Equal(t, "Generated: a todo app", cmd.Description)

	snap := ws.Snapshot()
	assert.Equal(t, "<ul></ul>", snap.HTML)
	assert.Equal(t, "p", snap.SelectedElement)
	assert.Equal(t, history.ViewportDesktop, snap.Viewport)

	undone, err := ws.Undo()
	require.NoError(t, err)
	require.NotNil(t, undone)
	assert.Equal(t, "<p>old</p>", ws.Snapshot().HTML)
	assert.Equal(t, "", ws.Snapshot().CSS)

	_, err = ws.Redo()
	require.NoError(t, err)
	assert.Equal(t, "ul{}", ws.Snapshot().CSS)
}

func TestApplyGenerationPartialDescription(t *testing.T) {
	ws := New("p1", history.Snapshot{}, 0, zap.NewNop())
	cmd := ws.ApplyGeneration("dashboard", generation.Payload{HTML: "<div>"}, true)
	assert.Equal(t, "Generated (partial): dashboard", cmd.Description)
}

func TestApplySurgical(t *testing.T) {
	ws := New("p1", history.Snapshot{CSS: "a{color:red}"}, 0, zap.NewNop())

	_, changed, err := ws.ApplySurgical(history.FileCSS, "a{color:red}", "noop")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, ws.History().CanUndo)

	cmd, changed, err := ws.ApplySurgical(history.FileCSS, "a{color:blue}", "recolor links")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, history.FileCSS, cmd.File)

	_, err = ws.Undo()
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}", ws.Snapshot().CSS)

	_, _, err = ws.ApplySurgical("py", "x", "bad")
	assert.Error(t, err)
}

func TestComponentAddAndDelete(t *testing.T) {
	ws := New("p1", history.Snapshot{HTML: "<main></main>"}, 0, zap.NewNop())

	_, err := ws.AddComponent("Footer", "<footer>hi</footer>", "footer{}")
	require.NoError(t, err)
	assert.Equal(t, "<main></main>\n<footer>hi</footer>", ws.Snapshot().HTML)
	assert.Equal(t, "footer{}", ws.Snapshot().CSS)

	cmd, err := ws.DeleteComponent("Footer", "<footer>hi</footer>")
	require.NoError(t, err)
	assert.Equal(t, "Deleted component: Footer", cmd.Description)
	assert.Equal(t, "<main></main>\n", ws.Snapshot().HTML)

	_, err = ws.DeleteComponent("Nav", "<nav></nav>")
	assert.ErrorIs(t, err, ErrComponentNotFound)

	steps, err := ws.JumpTo(-1)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Equal(t, "<main></main>", ws.Snapshot().HTML)
}

func TestApplyVisualEditKeepsViewport(t *testing.T) {
	ws := New("p1", history.Snapshot{Viewport: history.ViewportMobile}, 0, zap.NewNop())
	_, err := ws.ApplyVisualEdit(history.Snapshot{HTML: "<h1>Hi</h1>"}, "edited heading")
	require.NoError(t, err)
	assert.Equal(t, history.ViewportMobile, ws.Snapshot().Viewport)
	assert.Len(t, ws.SearchHistory("heading"), 1)
}

func TestApplyVisualEditRejectsUnknownViewport(t *testing.T) {
	ws := New("p1", history.Snapshot{HTML: "<p>keep</p>"}, 0, zap.NewNop())

	_, err := ws.ApplyVisualEdit(history.Snapshot{HTML: "<h1>Hi</h1>", Viewport: "watch"}, "bad viewport")
	require.Error(t, err)
	assert.Equal(t, "<p>keep</p>", ws.Snapshot().HTML)
	assert.False(t, ws.History().CanUndo)
}

func TestDocumentViewportValidation(t *testing.T) {
	doc := NewDocument(history.Snapshot{})
	assert.NoError(t, doc.SetViewport(history.ViewportTablet))
	assert.Error(t, doc.SetViewport("watch"))
	doc.SetSelectedElement("#save")
	assert.Equal(t, "#save", doc.Snapshot().SelectedElement)
}

func TestRegistryLoadsOnce(t *testing.T) {
	loads := 0
	registry := NewRegistry(func(ctx context.Context, projectID string) (history.Snapshot, error) {
		loads++
		return history.Snapshot{HTML: "stored " + projectID}, nil
	}, 0, zap.NewNop())

	ws, err := registry.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "stored p1", ws.Snapshot().HTML)

	again, err := registry.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Same(t, ws, again)
	assert.Equal(t, 1, loads)

	registry.Drop("p1")
	assert.Equal(t, 0, registry.Len())
}

func TestRegistryPropagatesLoadErrors(t *testing.T) {
	registry := NewRegistry(func(ctx context.Context, projectID string) (history.Snapshot, error) {
		return history.Snapshot{}, errors.New("no rows")
	}, 0, zap.NewNop())

	_, err := registry.Get(context.Background(), "missing")
	assert.ErrorContains(t, err, "failed to load project missing")
	assert.Equal(t, 0, registry.Len())
}
