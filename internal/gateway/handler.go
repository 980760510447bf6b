package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/auth"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/orchestration"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/storage"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/surgical"
)

// UserRepository looks up login accounts
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Handler serves the HTTP API
type Handler struct {
	service    *orchestration.Service
	users      UserRepository
	jwtManager *auth.JWTManager
	tokenTTL   time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
	upgrader   websocketUpgrader
}

// NewHandler creates a gateway handler. allowedOrigin restricts WebSocket
// upgrades; "*" allows any origin.
func NewHandler(service *orchestration.Service, users UserRepository, jwtManager *auth.JWTManager, tokenTTL time.Duration, allowedOrigin string, logger *zap.Logger) *Handler {
	return &Handler{
		service:    service,
		users:      users,
		jwtManager: jwtManager,
		tokenTTL:   tokenTTL,
		logger:     logger,
		tracer:     otel.Tracer("gateway"),
		upgrader:   newUpgrader(allowedOrigin),
	}
}

// RegisterRoutes mounts the API. public is unauthenticated, protected
// already carries the auth middleware.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/auth/login", h.Login)

	protected.GET("/projects", h.ListProjects)
	protected.POST("/projects", h.CreateProject)
	protected.GET("/projects/:id", h.GetProject)
	protected.PUT("/projects/:id", h.UpdateProject)
	protected.DELETE("/projects/:id", h.DeleteProject)
	protected.POST("/projects/:id/duplicate", h.DuplicateProject)
	protected.GET("/projects/:id/versions", h.ListVersions)
	protected.POST("/projects/:id/versions", h.CreateVersion)
	protected.POST("/versions/:versionId/restore", h.RestoreVersion)
	protected.GET("/projects/:id/runs", h.ListRuns)

	protected.GET("/projects/:id/history", h.GetHistory)
	protected.POST("/projects/:id/history/undo", h.Undo)
	protected.POST("/projects/:id/history/redo", h.Redo)
	protected.POST("/projects/:id/history/jump", h.JumpTo)
	protected.DELETE("/projects/:id/history", h.ClearHistory)

	protected.POST("/projects/:id/surgical-edit", h.SurgicalEdit)
	protected.POST("/projects/:id/visual-edit", h.VisualEdit)
	protected.POST("/projects/:id/components", h.AddComponent)
	protected.DELETE("/projects/:id/components", h.DeleteComponent)

	protected.POST("/chat/stream", h.StreamChat)
	protected.POST("/chat/mock", h.MockChat)
	protected.GET("/chat/cache", h.ListCache)
	protected.DELETE("/chat/cache", h.ClearCache)
	protected.GET("/ws/generate", h.GenerationSocket)
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	email := models.NormalizeEmail(req.Email)
	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.respondError(c, err, "Failed to look up user")
			return
		}
		h.logger.Warn("login for unknown user", zap.String("email", email))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		h.logger.Warn("invalid password", zap.String("email", email))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(c.Request.Context(), user.ID, user.Email, []string{"user"}, h.tokenTTL)
	if err != nil {
		h.respondError(c, err, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, models.NewLoginResponse(token, expiresAt, user))
}

// ListProjects godoc
// @Summary List projects
// @Tags projects
// @Produce json
// @Success 200 {array} models.Project
// @Security BearerAuth
// @Router /projects [get]
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list projects")
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject godoc
// @Summary Create project
// @Tags projects
// @Accept json
// @Produce json
// @Param request body models.CreateProjectRequest true "Project"
// @Success 201 {object} models.Project
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects [post]
func (h *Handler) CreateProject(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	if req.Type != "" && req.Type != models.ProjectTypePrototype && req.Type != models.ProjectTypeRequirements {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "type must be prototype or requirements", Code: models.ErrCodeValidationFailed})
		return
	}

	project, err := h.service.CreateProject(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to create project")
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetProject godoc
// @Summary Get project
// @Tags projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} models.Project
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id} [get]
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get project")
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject godoc
// @Summary Update project
// @Description Only the provided fields are changed
// @Tags projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body models.UpdateProjectRequest true "Fields to change"
// @Success 200 {object} models.Project
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id} [put]
func (h *Handler) UpdateProject(c *gin.Context) {
	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	project, err := h.service.UpdateProject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err, "Failed to update project")
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject godoc
// @Summary Delete project
// @Tags projects
// @Param id path string true "Project ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id} [delete]
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.service.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to delete project")
		return
	}
	c.Status(http.StatusNoContent)
}

// DuplicateProject godoc
// @Summary Duplicate project
// @Tags projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 201 {object} models.Project
// @Security BearerAuth
// @Router /projects/{id}/duplicate [post]
func (h *Handler) DuplicateProject(c *gin.Context) {
	project, err := h.service.DuplicateProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to duplicate project")
		return
	}
	c.JSON(http.StatusCreated, project)
}

// ListVersions godoc
// @Summary List saved versions
// @Tags versions
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {array} models.ProjectVersion
// @Security BearerAuth
// @Router /projects/{id}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to list versions")
		return
	}
	c.JSON(http.StatusOK, versions)
}

// CreateVersion godoc
// @Summary Save the current code as a version
// @Tags versions
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body models.CreateVersionRequest false "Version details"
// @Success 201 {object} models.ProjectVersion
// @Security BearerAuth
// @Router /projects/{id}/versions [post]
func (h *Handler) CreateVersion(c *gin.Context) {
	var req models.CreateVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request", err)
			return
		}
	}
	version, err := h.service.CreateVersion(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err, "Failed to create version")
		return
	}
	c.JSON(http.StatusCreated, version)
}

// RestoreVersion godoc
// @Summary Restore a saved version
// @Description The current code is saved as a "Before restore" version first
// @Tags versions
// @Produce json
// @Param versionId path string true "Version ID"
// @Success 200 {object} models.Project
// @Security BearerAuth
// @Router /versions/{versionId}/restore [post]
func (h *Handler) RestoreVersion(c *gin.Context) {
	project, err := h.service.RestoreVersion(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		h.respondError(c, err, "Failed to restore version")
		return
	}
	c.JSON(http.StatusOK, project)
}

// ListRuns godoc
// @Summary Recent generation runs of a project
// @Tags generation
// @Produce json
// @Param id path string true "Project ID"
// @Param limit query int false "Maximum runs"
// @Success 200 {array} models.GenerationRun
// @Security BearerAuth
// @Router /projects/{id}/runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.service.Runs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, err, "Failed to list runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}

// JumpRequest selects a position on the history timeline
type JumpRequest struct {
	Index *int `json:"index" binding:"required"`
}

// GetHistory godoc
// @Summary Undo and redo stacks
// @Tags history
// @Produce json
// @Param id path string true "Project ID"
// @Param q query string false "Filter by description or kind"
// @Success 200 {object} history.State
// @Security BearerAuth
// @Router /projects/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	if q := c.Query("q"); q != "" {
		commands, err := h.service.SearchHistory(ctx, c.Param("id"), q)
		if err != nil {
			h.respondError(c, err, "Failed to search history")
			return
		}
		c.JSON(http.StatusOK, commands)
		return
	}

	state, err := h.service.History(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get history")
		return
	}
	c.JSON(http.StatusOK, state)
}

// Undo godoc
// @Summary Undo the latest change
// @Tags history
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} orchestration.HistoryChange
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id}/history/undo [post]
func (h *Handler) Undo(c *gin.Context) {
	change, err := h.service.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to undo")
		return
	}
	if change.Command == nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Nothing to undo", Code: models.ErrCodeNothingToUndo})
		return
	}
	c.JSON(http.StatusOK, change)
}

// Redo godoc
// @Summary Redo the latest undone change
// @Tags history
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} orchestration.HistoryChange
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id}/history/redo [post]
func (h *Handler) Redo(c *gin.Context) {
	change, err := h.service.Redo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to redo")
		return
	}
	if change.Command == nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Nothing to redo", Code: models.ErrCodeNothingToRedo})
		return
	}
	c.JSON(http.StatusOK, change)
}

// JumpTo godoc
// @Summary Jump to a point in history
// @Description -1 undoes everything
// @Tags history
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body JumpRequest true "Target index"
// @Success 200 {object} orchestration.HistoryChange
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id}/history/jump [post]
func (h *Handler) JumpTo(c *gin.Context) {
	var req JumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	change, err := h.service.JumpTo(c.Request.Context(), c.Param("id"), *req.Index)
	if err != nil {
		h.respondError(c, err, "Failed to jump in history")
		return
	}
	c.JSON(http.StatusOK, change)
}

// ClearHistory godoc
// @Summary Clear undo and redo stacks
// @Tags history
// @Param id path string true "Project ID"
// @Success 204
// @Security BearerAuth
// @Router /projects/{id}/history [delete]
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.service.ClearHistory(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to clear history")
		return
	}
	c.Status(http.StatusNoContent)
}

// SurgicalEditRequest asks for a targeted change
type SurgicalEditRequest struct {
	Description     string                    `json:"description" binding:"required"`
	SelectedElement *surgical.SelectedElement `json:"selectedElement"`
}

// SurgicalEdit godoc
// @Summary Apply a targeted AI edit
// @Tags edits
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body SurgicalEditRequest true "Edit"
// @Success 200 {object} orchestration.SurgicalResult
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id}/surgical-edit [post]
func (h *Handler) SurgicalEdit(c *gin.Context) {
	var req SurgicalEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	result, err := h.service.SurgicalEdit(c.Request.Context(), c.Param("id"), req.Description, req.SelectedElement)
	if err != nil {
		h.respondError(c, err, "Failed to apply surgical edit")
		return
	}
	c.JSON(http.StatusOK, result)
}

// VisualEdit godoc
// @Summary Record a direct edit from the preview
// @Tags edits
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body orchestration.VisualEdit true "Edited state"
// @Success 200 {object} history.Command
// @Security BearerAuth
// @Router /projects/{id}/visual-edit [post]
func (h *Handler) VisualEdit(c *gin.Context) {
	var req orchestration.VisualEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	cmd, err := h.service.VisualEdit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err, "Failed to apply visual edit")
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// ComponentRequest names a component and its markup
type ComponentRequest struct {
	Name string `json:"name" binding:"required"`
	HTML string `json:"html" binding:"required"`
	CSS  string `json:"css"`
}

// AddComponent godoc
// @Summary Append a component
// @Tags edits
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body ComponentRequest true "Component"
// @Success 200 {object} history.Command
// @Security BearerAuth
// @Router /projects/{id}/components [post]
func (h *Handler) AddComponent(c *gin.Context) {
	var req ComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	cmd, err := h.service.AddComponent(c.Request.Context(), c.Param("id"), req.Name, req.HTML, req.CSS)
	if err != nil {
		h.respondError(c, err, "Failed to add component")
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// DeleteComponent godoc
// @Summary Remove a component
// @Tags edits
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body ComponentRequest true "Component"
// @Success 200 {object} history.Command
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /projects/{id}/components [delete]
func (h *Handler) DeleteComponent(c *gin.Context) {
	var req ComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	cmd, err := h.service.DeleteComponent(c.Request.Context(), c.Param("id"), req.Name, req.HTML)
	if err != nil {
		h.respondError(c, err, "Failed to delete component")
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// ListCache godoc
// @Summary List cached responses
// @Tags generation
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /chat/cache [get]
func (h *Handler) ListCache(c *gin.Context) {
	entries, err := h.service.CachedResponses(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list cached responses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "responses": entries})
}

// ClearCache godoc
// @Summary Clear cached responses
// @Tags generation
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /chat/cache [delete]
func (h *Handler) ClearCache(c *gin.Context) {
	removed, err := h.service.ClearCache(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to clear cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared successfully", "removed": removed})
}
