package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/surgical"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/workspace"
)

// ProjectRepository stores projects and their versions
type ProjectRepository interface {
	List(ctx context.Context) ([]*models.Project, error)
	Get(ctx context.Context, id string) (*models.Project, error)
	Create(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error)
	Update(ctx context.Context, id string, req models.UpdateProjectRequest) (*models.Project, error)
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (*models.Project, error)
	SaveCode(ctx context.Context, id string, snap history.Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (history.Snapshot, error)
	CreateVersion(ctx context.Context, id string, req models.CreateVersionRequest) (*models.ProjectVersion, error)
	ListVersions(ctx context.Context, id string) ([]*models.ProjectVersion, error)
	RestoreVersion(ctx context.Context, versionID string) (*models.Project, error)
}

// ResponseCache keeps successful payloads for replay
type ResponseCache interface {
	Save(ctx context.Context, prompt string, payload generation.Payload) error
	FindBestMatch(ctx context.Context, prompt string) (*generation.Payload, error)
	List(ctx context.Context) ([]models.CachedResponse, error)
	Clear(ctx context.Context) (int64, error)
}

// RunStore keeps the audit trail of generation runs
type RunStore interface {
	Record(ctx context.Context, run *models.GenerationRun) error
	ListByProject(ctx context.Context, projectID string, limit int) ([]*models.GenerationRun, error)
}

// Generator runs one generation request
type Generator interface {
	Run(ctx context.Context, req generation.Request, sink generation.EventSink) (*generation.Result, error)
}

// EditGenerator turns a description into surgical edits
type EditGenerator interface {
	Generate(ctx context.Context, req surgical.Request) (*surgical.Response, error)
}

// Service ties generation, surgical edits and history to stored projects
type Service struct {
	projects    ProjectRepository
	generator   Generator
	editor      EditGenerator
	cache       ResponseCache
	runs        RunStore
	workspaces  *workspace.Registry
	logger      *zap.Logger
	tracer      trace.Tracer
	replayDelay time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithCache enables saving and replaying payloads
func WithCache(cache ResponseCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithRunStore enables the generation audit trail
func WithRunStore(runs RunStore) Option {
	return func(s *Service) { s.runs = runs }
}

// WithReplayDelay sets the pause between replayed explanation chunks
func WithReplayDelay(d time.Duration) Option {
	return func(s *Service) { s.replayDelay = d }
}

// NewService creates the service. historyDepth bounds each project's undo stack.
func NewService(projects ProjectRepository, generator Generator, editor EditGenerator, historyDepth int, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		projects:    projects,
		generator:   generator,
		editor:      editor,
		logger:      logger,
		tracer:      otel.Tracer("orchestration-service"),
		replayDelay: 50 * time.Millisecond,
	}
	s.workspaces = workspace.NewRegistry(projects.LoadSnapshot, historyDepth, logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs req and, in agent mode, applies the payload to the project's
// workspace as an undoable command and persists the new code. projectID may
// be empty for a detached run; otherwise it is the default thread id.
func (s *Service) Generate(ctx context.Context, projectID string, req generation.Request, sink generation.EventSink) (*generation.Result, error) {
	ctx, span := s.tracer.Start(ctx, "service.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", projectID),
		attribute.String("generation.mode", string(req.Mode)),
	)

	var ws *workspace.Workspace
	if projectID != "" {
		var err error
		ws, err = s.workspaces.Get(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if req.CurrentCode == "" {
			req.CurrentCode = ws.Snapshot().HTML
		}
		if req.ThreadID == "" {
			req.ThreadID = projectID
		}
	}

	start := time.Now()
	result, err := s.generator.Run(ctx, req, sink)
	s.recordRun(ctx, projectID, req, result, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if result.Payload == nil || req.Mode == generation.ModeChat {
		return result, nil
	}

	persistCtx := context.WithoutCancel(ctx)
	if ws != nil {
		cmd := ws.ApplyGeneration(req.UserMessage, *result.Payload, result.IsPartial)
		if err := s.projects.SaveCode(persistCtx, projectID, ws.Snapshot()); err != nil {
			s.logger.Warn("failed to persist generated code",
				zap.String("project_id", projectID),
				zap.String("command_id", cmd.ID),
				zap.Error(err),
			)
		}
	}
	if s.cache != nil && !result.IsPartial {
		if err := s.cache.Save(persistCtx, req.UserMessage, *result.Payload); err != nil {
			s.logger.Warn("failed to cache response", zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) recordRun(ctx context.Context, projectID string, req generation.Request, result *generation.Result, runErr error, elapsed time.Duration) {
	if s.runs == nil {
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = generation.ModeAgent
	}
	run := &models.GenerationRun{
		ThreadID:   req.ThreadID,
		Mode:       string(mode),
		Prompt:     req.UserMessage,
		Status:     models.RunStatusCompleted,
		Attempts:   1,
		DurationMS: elapsed.Milliseconds(),
	}
	if projectID != "" {
		run.ProjectID = &projectID
	}

	if result != nil {
		run.ID = result.RunID
		run.ThreadID = result.ThreadID
		run.Attempts = result.Attempts
		run.Strategy = string(result.Strategy)
		if result.IsPartial {
			run.Status = models.RunStatusPartial
		}
	}
	if runErr != nil {
		run.Status = models.RunStatusFailed
		message := runErr.Error()
		run.ErrorMessage = &message
		var failure *generation.Failure
		if errors.As(runErr, &failure) {
			kind := string(failure.Classification.Kind)
			run.ErrorKind = &kind
			run.Attempts = failure.Attempts
		}
	}
	if run.ThreadID == "" {
		run.ThreadID = uuid.NewString()
	}

	if err := s.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record generation run", zap.Error(err))
	}
}

// Mock replays a cached payload for prompt, or a built-in sample, through
// the run lifecycle without calling a provider.
func (s *Service) Mock(ctx context.Context, prompt, threadID string, sink generation.EventSink) (*generation.Result, error) {
	payload := s.mockPayload(ctx, prompt)
	return generation.Replay(ctx, payload, sink, generation.ReplayOptions{
		ThreadID: threadID,
		Delay:    s.replayDelay,
		Logger:   s.logger,
	})
}

func (s *Service) mockPayload(ctx context.Context, prompt string) generation.Payload {
	if s.cache != nil {
		cached, err := s.cache.FindBestMatch(ctx, prompt)
		if err == nil {
			s.logger.Info("replaying cached response", zap.String("prompt", shorten(prompt, 50)))
			return *cached
		}
		s.logger.Info("no cached response found, using sample", zap.String("prompt", shorten(prompt, 50)), zap.Error(err))
	}
	return SamplePayload(prompt)
}

// CachedResponses lists the response cache
func (s *Service) CachedResponses(ctx context.Context) ([]models.CachedResponse, error) {
	if s.cache == nil {
		return []models.CachedResponse{}, nil
	}
	return s.cache.List(ctx)
}

// ClearCache empties the response cache
func (s *Service) ClearCache(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Clear(ctx)
}

// Runs lists recent generation runs of a project
func (s *Service) Runs(ctx context.Context, projectID string, limit int) ([]*models.GenerationRun, error) {
	if s.runs == nil {
		return []*models.GenerationRun{}, nil
	}
	return s.runs.ListByProject(ctx, projectID, limit)
}

func shorten(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (s *Service) persist(ctx context.Context, projectID string, ws *workspace.Workspace) error {
	if err := s.projects.SaveCode(context.WithoutCancel(ctx), projectID, ws.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist project %s: %w", projectID, err)
	}
	return nil
}
