package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

func TestMemoryProjectsVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProjects()

	p, err := store.Create(ctx, models.CreateProjectRequest{HTML: "<p>v0</p>"})
	require.NoError(t, err)
	assert.Contains(t, p.Name, "Untitled Project - ")

	first, err := store.CreateVersion(ctx, p.ID, models.CreateVersionRequest{})
	require.NoError(t, err)
	for i := 0; i < MaxVersions+3; i++ {
		_, err := store.CreateVersion(ctx, p.ID, models.CreateVersionRequest{})
		require.NoError(t, err)
	}
	versions, err := store.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, versions, MaxVersions)

	_, err = store.RestoreVersion(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	html := "<p>v1</p>"
	_, err = store.Update(ctx, p.ID, models.UpdateProjectRequest{HTML: &html})
	require.NoError(t, err)

	restored, err := store.RestoreVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>v0</p>", restored.HTML)

	versions, err = store.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, versions[0].Description)
	assert.Equal(t, "Before restore", *versions[0].Description)
	assert.Equal(t, "<p>v1</p>", versions[0].HTML)
}

func TestMemoryProjectsLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProjects()

	p, err := store.Create(ctx, models.CreateProjectRequest{Name: "Todo"})
	require.NoError(t, err)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastOpenedAt)

	dup, err := store.Duplicate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Todo (Copy)", dup.Name)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(ctx, p.ID))
	assert.ErrorIs(t, store.Delete(ctx, p.ID), ErrNotFound)
	_, err = store.LoadSnapshot(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
