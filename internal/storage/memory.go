package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

// MemoryProjects is a ProjectStore kept in process memory. It backs the CLI
// and servers started without a database.
type MemoryProjects struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	versions []*models.ProjectVersion
	now      func() time.Time
}

// NewMemoryProjects creates an empty in-memory store
func NewMemoryProjects() *MemoryProjects {
	return &MemoryProjects{projects: make(map[string]*models.Project), now: time.Now}
}

func (m *MemoryProjects) get(id string) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	return &c
}

func (m *MemoryProjects) List(ctx context.Context) ([]*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, cloneProject(p))
	}
	slices.SortFunc(out, func(a, b *models.Project) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (m *MemoryProjects) Get(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	opened := m.now()
	p.LastOpenedAt = &opened
	return cloneProject(p), nil
}

func (m *MemoryProjects) LoadSnapshot(ctx context.Context, id string) (history.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return history.Snapshot{}, err
	}
	return history.Snapshot{HTML: p.HTML, CSS: p.CSS, JS: p.JS, Viewport: history.ViewportDesktop}, nil
}

func (m *MemoryProjects) Create(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultProjectName(now)
	}
	projectType := req.Type
	if projectType == "" {
		projectType = models.ProjectTypePrototype
	}
	p := &models.Project{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  req.Description,
		Type:         projectType,
		HTML:         req.HTML,
		CSS:          req.CSS,
		JS:           req.JS,
		Requirements: req.Requirements,
		Template:     req.Template,
		Tags:         []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.projects[p.ID] = p
	return cloneProject(p), nil
}

func (m *MemoryProjects) Update(ctx context.Context, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.HTML != nil {
		p.HTML = *req.HTML
	}
	if req.CSS != nil {
		p.CSS = *req.CSS
	}
	if req.JS != nil {
		p.JS = *req.JS
	}
	if req.Requirements != nil {
		p.Requirements = req.Requirements
	}
	if req.Thumbnail != nil {
		p.Thumbnail = req.Thumbnail
	}
	if req.Tags != nil {
		p.Tags = slices.Clone(req.Tags)
	}
	p.UpdatedAt = m.now()
	return cloneProject(p), nil
}

func (m *MemoryProjects) SaveCode(ctx context.Context, id string, snap history.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.HTML, p.CSS, p.JS = snap.HTML, snap.CSS, snap.JS
	p.UpdatedAt = m.now()
	return nil
}

func (m *MemoryProjects) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.projects, id)
	m.versions = slices.DeleteFunc(m.versions, func(v *models.ProjectVersion) bool { return v.ProjectID == id })
	return nil
}

func (m *MemoryProjects) Duplicate(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	now := m.now()
	dup := cloneProject(p)
	dup.ID = uuid.NewString()
	dup.Name = p.Name + " (Copy)"
	dup.CreatedAt, dup.UpdatedAt, dup.LastOpenedAt = now, now, nil
	m.projects[dup.ID] = dup
	return cloneProject(dup), nil
}

func (m *MemoryProjects) CreateVersion(ctx context.Context, id string, req models.CreateVersionRequest) (*models.ProjectVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createVersionLocked(id, req.Description, req.GenerationPrompt)
}

func (m *MemoryProjects) createVersionLocked(id string, description, prompt *string) (*models.ProjectVersion, error) {
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	v := &models.ProjectVersion{
		ID:               uuid.NewString(),
		ProjectID:        id,
		HTML:             p.HTML,
		CSS:              p.CSS,
		JS:               p.JS,
		Description:      description,
		GenerationPrompt: prompt,
		CreatedAt:        m.now(),
	}
	// newest first
	m.versions = append([]*models.ProjectVersion{v}, m.versions...)

	kept := 0
	m.versions = slices.DeleteFunc(m.versions, func(existing *models.ProjectVersion) bool {
		if existing.ProjectID != id {
			return false
		}
		kept++
		return kept > MaxVersions
	})
	copied := *v
	return &copied, nil
}

func (m *MemoryProjects) ListVersions(ctx context.Context, id string) ([]*models.ProjectVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*models.ProjectVersion{}
	for _, v := range m.versions {
		if v.ProjectID == id {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MemoryProjects) RestoreVersion(ctx context.Context, versionID string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.versions, func(v *models.ProjectVersion) bool { return v.ID == versionID })
	if idx < 0 {
		return nil, ErrNotFound
	}
	target := *m.versions[idx]

	description := "Before restore"
	if _, err := m.createVersionLocked(target.ProjectID, &description, nil); err != nil {
		return nil, err
	}
	p, err := m.get(target.ProjectID)
	if err != nil {
		return nil, err
	}
	p.HTML, p.CSS, p.JS = target.HTML, target.CSS, target.JS
	p.UpdatedAt = m.now()
	return cloneProject(p), nil
}
