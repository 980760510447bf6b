package orchestration

import (
	"context"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
)

// HistoryChange is the outcome of an undo, redo or jump
type HistoryChange struct {
	Command *history.Command `json:"command,omitempty"`
	Steps   int              `json:"steps"`
	State   history.State    `json:"history"`
	Code    history.Snapshot `json:"code"`
}

// History returns the undo and redo stacks of a project
func (s *Service) History(ctx context.Context, projectID string) (history.State, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return history.State{}, err
	}
	return ws.History(), nil
}

// SearchHistory returns matching commands, newest first
func (s *Service) SearchHistory(ctx context.Context, projectID, query string) ([]history.Command, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return ws.SearchHistory(query), nil
}

// Undo reverts the latest command. A nil Command means there was nothing to undo.
func (s *Service) Undo(ctx context.Context, projectID string) (*HistoryChange, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cmd, err := ws.Undo()
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		if err := s.persist(ctx, projectID, ws); err != nil {
			return nil, err
		}
	}
	return &HistoryChange{Command: cmd, Steps: stepsFor(cmd), State: ws.History(), Code: ws.Snapshot()}, nil
}

// Redo re-applies the latest undone command
func (s *Service) Redo(ctx context.Context, projectID string) (*HistoryChange, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cmd, err := ws.Redo()
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		if err := s.persist(ctx, projectID, ws); err != nil {
			return nil, err
		}
	}
	return &HistoryChange{Command: cmd, Steps: stepsFor(cmd), State: ws.History(), Code: ws.Snapshot()}, nil
}

// JumpTo undoes or redoes until targetIndex is the latest applied command
func (s *Service) JumpTo(ctx context.Context, projectID string, targetIndex int) (*HistoryChange, error) {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	steps, err := ws.JumpTo(targetIndex)
	if err != nil {
		return nil, err
	}
	if steps > 0 {
		if err := s.persist(ctx, projectID, ws); err != nil {
			return nil, err
		}
	}
	return &HistoryChange{Steps: steps, State: ws.History(), Code: ws.Snapshot()}, nil
}

// ClearHistory empties both stacks without touching the code
func (s *Service) ClearHistory(ctx context.Context, projectID string) error {
	ws, err := s.workspaces.Get(ctx, projectID)
	if err != nil {
		return err
	}
	ws.ClearHistory()
	return nil
}

func stepsFor(cmd *history.Command) int {
	if cmd == nil {
		return 0
	}
	return 1
}
