package orchestration

import (
	"context"

	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

func (s *Service) ListProjects(ctx context.Context) ([]*models.Project, error) {
	return s.projects.List(ctx)
}

func (s *Service) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *Service) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	return s.projects.Create(ctx, req)
}

func (s *Service) DuplicateProject(ctx context.Context, id string) (*models.Project, error) {
	return s.projects.Duplicate(ctx, id)
}

// UpdateProject stores the provided fields. A code change on an open
// workspace is recorded as a visual edit so it can be undone.
func (s *Service) UpdateProject(ctx context.Context, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	project, err := s.projects.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if req.HTML != nil || req.CSS != nil || req.JS != nil {
		s.syncWorkspace(id, project, "Project updated")
	}
	return project, nil
}

// DeleteProject removes a project and forgets its history
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	s.workspaces.Drop(id)
	return nil
}

func (s *Service) CreateVersion(ctx context.Context, projectID string, req models.CreateVersionRequest) (*models.ProjectVersion, error) {
	return s.projects.CreateVersion(ctx, projectID, req)
}

func (s *Service) ListVersions(ctx context.Context, projectID string) ([]*models.ProjectVersion, error) {
	return s.projects.ListVersions(ctx, projectID)
}

// RestoreVersion replaces a project's code with a saved version
func (s *Service) RestoreVersion(ctx context.Context, versionID string) (*models.Project, error) {
	project, err := s.projects.RestoreVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	s.syncWorkspace(project.ID, project, "Restored version")
	return project, nil
}

func (s *Service) syncWorkspace(id string, project *models.Project, description string) {
	ws, ok := s.workspaces.Lookup(id)
	if !ok {
		return
	}
	current := ws.Snapshot()
	if current.HTML == project.HTML && current.CSS == project.CSS && current.JS == project.JS {
		return
	}
	_, err := ws.ApplyVisualEdit(history.Snapshot{
		HTML:            project.HTML,
		CSS:             project.CSS,
		JS:              project.JS,
		SelectedElement: current.SelectedElement,
		Viewport:        current.Viewport,
	}, description)
	if err != nil {
		s.logger.Warn("failed to sync workspace", zap.String("project_id", id), zap.Error(err))
	}
}
