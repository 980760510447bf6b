package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

func TestCacheKeyNormalizesPrompt(t *testing.T) {
	assert.Equal(t, CacheKey("Build a  Todo app"), CacheKey("  build a todo\tAPP "))
	assert.NotEqual(t, CacheKey("todo app"), CacheKey("todo apps"))
	assert.Len(t, CacheKey("anything"), 16)
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"todo", "app", "dark", "theme"}, Keywords("Create a todo app with a dark theme"))
	assert.Empty(t, Keywords("make it so"))
}

func TestBestMatch(t *testing.T) {
	entries := []models.CachedResponse{
		{Prompt: "weather dashboard with charts"},
		{Prompt: "todo app with dark theme"},
		{Prompt: "todo list"},
	}

	best, ok := BestMatch("build a todo app with a dark theme", entries)
	require.True(t, ok)
	assert.Equal(t, "todo app with dark theme", best.Prompt)

	_, ok = BestMatch("landing page for a bakery", entries)
	assert.False(t, ok)

	// half the keywords is not enough
	_, ok = BestMatch("todo calendar", []models.CachedResponse{{Prompt: "todo list"}})
	assert.False(t, ok)
}

func TestKeywordScore(t *testing.T) {
	assert.InDelta(t, 1.0, KeywordScore([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 0.5, KeywordScore([]string{"a"}, []string{"a", "b"}), 1e-9)
	assert.Zero(t, KeywordScore(nil, nil))
}

func TestUpdateAssignments(t *testing.T) {
	name := "Renamed"
	html := "<p></p>"
	sets, args := updateAssignments(models.UpdateProjectRequest{Name: &name, HTML: &html, Tags: []string{"demo"}})
	assert.Equal(t, []string{"name = $1", "html = $2", "tags = $3"}, sets)
	assert.Equal(t, []any{"Renamed", "<p></p>", []string{"demo"}}, args)

	sets, _ = updateAssignments(models.UpdateProjectRequest{})
	assert.Empty(t, sets)
}

func TestDefaultProjectName(t *testing.T) {
	assert.Equal(t, "Untitled Project - Mar 5, 2026", DefaultProjectName(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)))
}

func TestParseID(t *testing.T) {
	_, err := parseID("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url, 1, 0, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestProjectLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewProjectStore(pool, zap.NewNop())

	created, err := store.Create(ctx, models.CreateProjectRequest{Name: "Todo", HTML: "<ul></ul>"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, created.ID) })
	assert.Equal(t, models.ProjectTypePrototype, created.Type)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastOpenedAt)

	copyOf, err := store.Duplicate(ctx, created.ID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, copyOf.ID) })
	assert.Equal(t, "Todo (Copy)", copyOf.Name)

	for i := 0; i < MaxVersions+2; i++ {
		_, err := store.CreateVersion(ctx, created.ID, models.CreateVersionRequest{})
		require.NoError(t, err)
	}
	versions, err := store.ListVersions(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, versions, MaxVersions)

	css := "ul{}"
	_, err = store.Update(ctx, created.ID, models.UpdateProjectRequest{CSS: &css})
	require.NoError(t, err)

	restored, err := store.RestoreVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "", restored.CSS)

	versions, err = store.ListVersions(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, versions[0].Description)
	assert.Equal(t, "Before restore", *versions[0].Description)
	assert.Equal(t, "ul{}", versions[0].CSS)

	_, err = store.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResponseCacheRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	cache := NewResponseCache(pool, zap.NewNop())

	_, err := cache.Clear(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Save(ctx, "todo app with dark theme", generation.Payload{HTML: "<ul></ul>"}))

	exact, err := cache.Load(ctx, "Todo app  with dark theme")
	require.NoError(t, err)
	assert.Equal(t, "<ul></ul>", exact.HTML)

	similar, err := cache.FindBestMatch(ctx, "build a todo app with a dark theme")
	require.NoError(t, err)
	assert.Equal(t, "<ul></ul>", similar.HTML)

	_, err = cache.FindBestMatch(ctx, "bakery landing page")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewUserStore(pool)

	email := "user-" + time.Now().Format("150405.000000") + "@example.com"
	created, err := store.Create(ctx, "Test User", email, "hashed")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email) })

	got, err := store.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hashed", got.HashedPassword)

	_, err = store.Create(ctx, "Again", email, "hashed")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = store.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunStoreRecord(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	projects := NewProjectStore(pool, zap.NewNop())
	runs := NewRunStore(pool)

	p, err := projects.Create(ctx, models.CreateProjectRequest{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = projects.Delete(ctx, p.ID) })

	kind := "timeout"
	run := &models.GenerationRun{
		ProjectID: &p.ID,
		ThreadID:  "t-1",
		Mode:      "agent",
		Prompt:    "todo app",
		Status:    models.RunStatusFailed,
		Attempts:  3,
		ErrorKind: &kind,
	}
	require.NoError(t, runs.Record(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	listed, err := runs.ListByProject(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.RunStatusFailed, listed[0].Status)
	require.NotNil(t, listed[0].ErrorKind)
	assert.Equal(t, "timeout", *listed[0].ErrorKind)
}
