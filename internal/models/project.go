package models

import (
	"time"
)

// ProjectType distinguishes prototypes from requirement documents
type ProjectType string

const (
	ProjectTypePrototype    ProjectType = "prototype"
	ProjectTypeRequirements ProjectType = "requirements"
)

// Project is a stored prototype
type Project struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Description  *string     `json:"description,omitempty" db:"description"`
	Type         ProjectType `json:"type" db:"type"`
	HTML         string      `json:"html" db:"html"`
	CSS          string      `json:"css" db:"css"`
	JS           string      `json:"js" db:"js"`
	Requirements *string     `json:"requirements,omitempty" db:"requirements"`
	Thumbnail    *string     `json:"thumbnail,omitempty" db:"thumbnail"`
	Template     *string     `json:"template,omitempty" db:"template"`
	Tags         []string    `json:"tags" db:"tags"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	LastOpenedAt *time.Time  `json:"last_opened_at,omitempty" db:"last_opened_at"`
}

// ProjectVersion is a saved copy of a project's code
type ProjectVersion struct {
	ID               string    `json:"id" db:"id"`
	ProjectID        string    `json:"project_id" db:"project_id"`
	HTML             string    `json:"html" db:"html"`
	CSS              string    `json:"css" db:"css"`
	JS               string    `json:"js" db:"js"`
	Description      *string   `json:"description,omitempty" db:"description"`
	GenerationPrompt *string   `json:"generation_prompt,omitempty" db:"generation_prompt"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// CreateProjectRequest is the body of POST /api/projects
type CreateProjectRequest struct {
	Name         string      `json:"name"`
	Description  *string     `json:"description"`
	Type         ProjectType `json:"type"`
	HTML         string      `json:"html"`
	CSS          string      `json:"css"`
	JS           string      `json:"js"`
	Requirements *string     `json:"requirements"`
	Template     *string     `json:"template"`
}

// UpdateProjectRequest is the body of PUT /api/projects/:id. Nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name         *string      `json:"name"`
	Description  *string      `json:"description"`
	Type         *ProjectType `json:"type"`
	HTML         *string      `json:"html"`
	CSS          *string      `json:"css"`
	JS           *string      `json:"js"`
	Requirements *string      `json:"requirements"`
	Thumbnail    *string      `json:"thumbnail"`
	Tags         []string     `json:"tags"`
}

// CreateVersionRequest is the body of POST /api/projects/:id/versions
type CreateVersionRequest struct {
	Description      *string `json:"description"`
	GenerationPrompt *string `json:"generation_prompt"`
}

// CachedResponse is a stored generation payload keyed by prompt
type CachedResponse struct {
	Key        string    `json:"key" db:"prompt_hash"`
	Prompt     string    `json:"prompt" db:"prompt"`
	Payload    []byte    `json:"-" db:"payload"`
	HTMLLength int       `json:"html_length" db:"html_length"`
	CSSLength  int       `json:"css_length" db:"css_length"`
	JSLength   int       `json:"js_length" db:"js_length"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
