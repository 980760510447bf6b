package orchestration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/surgical"
)

// ErrInvalidViewport is returned for a viewport other than mobile, tablet or desktop
var ErrInvalidViewport = errors.New("invalid viewport")

// SurgicalResult reports what a surgical edit changed
type SurgicalResult struct {
	Explanation string            `json:"explanation"`
	EditType    surgical.EditType `json:"editType"`
	Edits       []surgical.Edit   `json:"edits"`
	Applied     []history.Command `json:"applied"`
	Skipped     []string          `json:"skipped,omitempty"`
	Code        history.Snapshot  `json:"code"`
}

// SurgicalEdit asks the model for targeted edits to a project and applies
// them, one history command per changed file.
func (s *Service) SurgicalEdit(ctx context.Context, projectID, description string, selected *surgical.SelectedElement) (*SurgicalResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.surgical_edit")
	defer span.End()

	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	snap := ws.Snapshot()
	current := surgical.Code{HTML: snap.HTML, CSS: snap.CSS, JS: snap.JS}
	resp, err := s.editor.Generate(ctx, surgical.Request{
		Description:     description,
		CurrentCode:     current,
		SelectedElement: selected,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	updated, skipped := surgical.ApplyEdits(current, resp.Edits)
	for _, reason := range skipped {
		s.logger.Warn("surgical edit skipped", zap.String("project_id", projectID), zap.String("reason", reason))
	}

	result := &SurgicalResult{
		Explanation: resp.Explanation,
		EditType:    resp.EditType,
		Edits:       resp.Edits,
		Applied:     []history.Command{},
		Skipped:     skipped,
	}
	for _, file := range surgical.ChangedFiles(current, updated) {
		cmd, changed, err := ws.ApplySurgical(file, updated.Get(file), fmt.Sprintf("%s (%s)", description, file))
		if err != nil {
			return nil, err
		}
		if changed {
			result.Applied = append(result.Applied, cmd)
		}
	}
	if len(result.Applied) > 0 {
		if err := s.persist(ctx, projectID, ws); err != nil {
			return nil, err
		}
	}
	result.Code = ws.Snapshot()
	return result, nil
}

// VisualEdit is a direct edit made in the preview
type VisualEdit struct {
	HTML            string           `json:"html"`
	CSS             string           `json:"css"`
	JS              string           `json:"js"`
	SelectedElement string           `json:"selectedElement,omitempty"`
	Viewport        history.Viewport `json:"viewport,omitempty"`
	Description     string           `json:"description"`
}

// VisualEdit replaces the project state with the edited one as an undoable command
func (s *Service) VisualEdit(ctx context.Context, projectID string, edit VisualEdit) (history.Command, error) {
	if edit.Viewport != "" && !edit.Viewport.Valid() {
		return history.Command{}, fmt.Errorf("%w: %q", ErrInvalidViewport, edit.Viewport)
	}
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return history.Command{}, err
	}

	description := edit.Description
	if description == "" {
		description = "Visual edit"
	}
	cmd, err := ws.ApplyVisualEdit(history.Snapshot{
		HTML:            edit.HTML,
		CSS:             edit.CSS,
		JS:              edit.JS,
		SelectedElement: edit.SelectedElement,
		Viewport:        edit.Viewport,
	}, description)
	if err != nil {
		return history.Command{}, err
	}
	return cmd, s.persist(ctx, projectID, ws)
}

// AddComponent appends a named component to a project
func (s *Service) AddComponent(ctx context.Context, projectID, name, markup, css string) (history.Command, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return history.Command{}, err
	}
	cmd, err := ws.AddComponent(name, markup, css)
	if err != nil {
		return history.Command{}, err
	}
	return cmd, s.persist(ctx, projectID, ws)
}

// DeleteComponent removes a named component's markup from a project
func (s *Service) DeleteComponent(ctx context.Context, projectID, name, markup string) (history.Command, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return history.Command{}, err
	}
	cmd, err := ws.DeleteComponent(name, markup)
	if err != nil {
		return history.Command{}, err
	}
	return cmd, s.persist(ctx, projectID, ws)
}
