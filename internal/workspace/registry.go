package workspace

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

// Loader returns the stored state of a project
type Loader func(ctx context.Context, projectID string) (history.Snapshot, error)

// Registry keeps one workspace per project, created on first use
type Registry struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
	load       Loader
	maxDepth   int
	logger     *zap.Logger
}

// NewRegistry creates a registry. load may be nil, in which case new
// workspaces start empty.
func NewRegistry(load Loader, maxDepth int, logger *zap.Logger) *Registry {
	return &Registry{
		workspaces: make(map[string]*Workspace),
		load:       load,
		maxDepth:   maxDepth,
		logger:     logger,
	}
}

// Get returns the workspace for projectID, loading it if needed
func (r *Registry) Get(ctx context.Context, projectID string) (*Workspace, error) {
	r.mu.Lock()
	ws, ok := r.workspaces[projectID]
	r.mu.Unlock()
	if ok {
		return ws, nil
	}

	var initial history.Snapshot
	if r.load != nil {
		snapshot, err := r.load(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
		}
		initial = snapshot
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workspaces[projectID]; ok {
		return existing, nil
	}
	ws = New(projectID, initial, r.maxDepth, r.logger)
	r.workspaces[projectID] = ws
	r.logger.Debug("workspace opened", zap.String("project_id", projectID))
	return ws, nil
}

// Lookup returns the workspace for projectID only if it is already open
func (r *Registry) Lookup(projectID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[projectID]
	return ws, ok
}

// Drop forgets a workspace and its history
func (r *Registry) Drop(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workspaces, projectID)
}

// Len is the number of open workspaces
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}
