package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

// MaxVersions is how many saved versions are kept per project
const MaxVersions = 10

const projectColumns = `id::text, name, description, type, html, css, js, requirements, thumbnail, template, tags, created_at, updated_at, last_opened_at`

const versionColumns = `id::text, project_id::text, html, css, js, description, generation_prompt, created_at`

// ProjectStore persists projects and their versions
type ProjectStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewProjectStore creates a project store on pool
func NewProjectStore(pool *pgxpool.Pool, logger *zap.Logger) *ProjectStore {
	return &ProjectStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("project-store"),
		now:    time.Now,
	}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Type, &p.HTML, &p.CSS, &p.JS,
		&p.Requirements, &p.Thumbnail, &p.Template, &p.Tags, &p.CreatedAt, &p.UpdatedAt, &p.LastOpenedAt)
	if err != nil {
		return nil, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

func scanVersion(row pgx.Row) (*models.ProjectVersion, error) {
	var v models.ProjectVersion
	if err := row.Scan(&v.ID, &v.ProjectID, &v.HTML, &v.CSS, &v.JS, &v.Description, &v.GenerationPrompt, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns all projects, most recently updated first
func (s *ProjectStore) List(ctx context.Context) ([]*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.list")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	span.SetAttributes(attribute.Int("projects.count", len(projects)))
	return projects, nil
}

// Get returns a project and marks it as opened
func (s *ProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.get")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", id))

	projectID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	p, err := scanProject(s.pool.QueryRow(ctx,
		`UPDATE projects SET last_opened_at = NOW() WHERE id = $1 RETURNING `+projectColumns, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// LoadSnapshot returns the stored code of a project without touching it
func (s *ProjectStore) LoadSnapshot(ctx context.Context, id string) (history.Snapshot, error) {
	projectID, err := parseID(id)
	if err != nil {
		return history.Snapshot{}, err
	}

	var snap history.Snapshot
	err = s.pool.QueryRow(ctx, `SELECT html, css, js FROM projects WHERE id = $1`, projectID).
		Scan(&snap.HTML, &snap.CSS, &snap.JS)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to load project code: %w", err)
	}
	snap.Viewport = history.ViewportDesktop
	return snap, nil
}

// Create inserts a new project
func (s *ProjectStore) Create(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.create")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultProjectName(s.now())
	}
	projectType := req.Type
	if projectType == "" {
		projectType = models.ProjectTypePrototype
	}

	p, err := scanProject(s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, description, type, html, css, js, requirements, template)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+projectColumns,
		name, req.Description, string(projectType), req.HTML, req.CSS, req.JS, req.Requirements, req.Template))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// DefaultProjectName names a project created without one
func DefaultProjectName(now time.Time) string {
	return "Untitled Project - " + now.Format("Jan 2, 2006")
}

// Update sets the provided fields of a project
func (s *ProjectStore) Update(ctx context.Context, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.update")
	defer span.End()

	projectID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	sets, args := updateAssignments(req)
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	args = append(args, projectID)

	query := fmt.Sprintf(`UPDATE projects SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), projectColumns)
	p, err := scanProject(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// updateAssignments builds the SET list for the non-nil fields of req
func updateAssignments(req models.UpdateProjectRequest) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Type != nil {
		add("type", string(*req.Type))
	}
	if req.HTML != nil {
		add("html", *req.HTML)
	}
	if req.CSS != nil {
		add("css", *req.CSS)
	}
	if req.JS != nil {
		add("js", *req.JS)
	}
	if req.Requirements != nil {
		add("requirements", *req.Requirements)
	}
	if req.Thumbnail != nil {
		add("thumbnail", *req.Thumbnail)
	}
	if req.Tags != nil {
		add("tags", req.Tags)
	}
	return sets, args
}

// SaveCode overwrites the code of a project
func (s *ProjectStore) SaveCode(ctx context.Context, id string, snap history.Snapshot) error {
	projectID, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `UPDATE projects SET html = $1, css = $2, js = $3 WHERE id = $4`,
		snap.HTML, snap.CSS, snap.JS, projectID)
	if err != nil {
		return fmt.Errorf("failed to save project code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a project and its versions
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	projectID, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("project deleted", zap.String("project_id", id))
	return nil
}

// Duplicate copies a project under the name "<name> (Copy)"
func (s *ProjectStore) Duplicate(ctx context.Context, id string) (*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.duplicate")
	defer span.End()

	projectID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	p, err := scanProject(s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, description, type, html, css, js, requirements, thumbnail, template, tags)
		SELECT name || ' (Copy)', description, type, html, css, js, requirements, thumbnail, template, tags
		FROM projects WHERE id = $1
		RETURNING `+projectColumns, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to duplicate project: %w", err)
	}
	return p, nil
}

// CreateVersion saves the current code of a project as a version, keeping
// only the newest MaxVersions.
func (s *ProjectStore) CreateVersion(ctx context.Context, id string, req models.CreateVersionRequest) (*models.ProjectVersion, error) {
	ctx, span := s.tracer.Start(ctx, "projects.create_version")
	defer span.End()

	projectID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	v, err := insertVersion(ctx, tx, projectID, req.Description, req.GenerationPrompt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := pruneVersions(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return v, nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, projectID any, description, prompt *string) (*models.ProjectVersion, error) {
	v, err := scanVersion(tx.QueryRow(ctx, `
		INSERT INTO project_versions (project_id, html, css, js, description, generation_prompt)
		SELECT id, html, css, js, $2, $3 FROM projects WHERE id = $1
		RETURNING `+versionColumns, projectID, description, prompt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}
	return v, nil
}

func pruneVersions(ctx context.Context, tx pgx.Tx, projectID any) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM project_versions
		WHERE project_id = $1 AND id NOT IN (
			SELECT id FROM project_versions WHERE project_id = $1
			ORDER BY created_at DESC LIMIT $2
		)`, projectID, MaxVersions)
	if err != nil {
		return fmt.Errorf("failed to prune versions: %w", err)
	}
	return nil
}

// ListVersions returns the saved versions of a project, newest first
func (s *ProjectStore) ListVersions(ctx context.Context, id string) ([]*models.ProjectVersion, error) {
	projectID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM project_versions
		WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, MaxVersions)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.ProjectVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RestoreVersion saves the current code as a "Before restore" version and
// then replaces it with the code of the given version.
func (s *ProjectStore) RestoreVersion(ctx context.Context, versionID string) (*models.Project, error) {
	ctx, span := s.tracer.Start(ctx, "projects.restore_version")
	defer span.End()

	vID, err := parseID(versionID)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	target, err := scanVersion(tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM project_versions WHERE id = $1`, vID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	projectID, err := parseID(target.ProjectID)
	if err != nil {
		return nil, err
	}
	description := "Before restore"
	if _, err := insertVersion(ctx, tx, projectID, &description, nil); err != nil {
		return nil, err
	}

	p, err := scanProject(tx.QueryRow(ctx, `
		UPDATE projects SET html = $1, css = $2, js = $3 WHERE id = $4
		RETURNING `+projectColumns, target.HTML, target.CSS, target.JS, projectID))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to restore version: %w", err)
	}
	if err := pruneVersions(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}

	s.logger.Info("version restored",
		zap.String("project_id", p.ID),
		zap.String("version_id", versionID),
	)
	return p, nil
}
