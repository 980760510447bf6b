package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

// StreamRequest starts a generation run
type StreamRequest struct {
	generation.Request
	ProjectID string `json:"projectId"`
}

// MockRequest replays a cached or sample response
type MockRequest struct {
	Message  string `json:"message" binding:"required"`
	ThreadID string `json:"threadId"`
}

// sseSink writes events as Server-Sent Events. Headers are sent with the
// first event so errors raised before the run starts can still be answered
// with a JSON body.
type sseSink struct {
	mu      sync.Mutex
	c       *gin.Context
	started bool
	logger  *zap.Logger
}

func (s *sseSink) Emit(event generation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.c.Writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		s.logger.Debug("client went away", zap.Error(err))
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) hasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StreamChat godoc
// @Summary Stream a generation run
// @Description Streams lifecycle events as Server-Sent Events. In agent mode with a projectId the generated code is applied to the project as an undoable change.
// @Tags generation
// @Accept json
// @Produce text/event-stream
// @Param request body StreamRequest true "Generation request"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /chat/stream [post]
func (h *Handler) StreamChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.stream_chat")
	defer span.End()

	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "message is required", Code: models.ErrCodeValidationFailed})
		return
	}
	if req.Mode != "" && req.Mode != generation.ModeAgent && req.Mode != generation.ModeChat {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "mode must be agent or chat", Code: models.ErrCodeValidationFailed})
		return
	}
	span.SetAttributes(
		attribute.String("project.id", req.ProjectID),
		attribute.String("user.id", c.GetString("user_id")),
	)

	sink := &sseSink{c: c, logger: h.logger}
	result, err := h.service.Generate(ctx, req.ProjectID, req.Request, sink)
	if err != nil {
		span.RecordError(err)
		if !sink.hasStarted() {
			h.respondError(c, err, "Failed to start generation")
			return
		}
		// RunError was already streamed
		h.logger.Warn("generation run failed",
			zap.String("project_id", req.ProjectID),
			zap.Error(err),
		)
		return
	}
	h.logger.Info("generation run finished",
		zap.String("project_id", req.ProjectID),
		zap.String("run_id", result.RunID),
		zap.Int("attempts", result.Attempts),
		zap.Bool("partial", result.IsPartial),
	)
}

// MockChat godoc
// @Summary Replay a cached or sample response
// @Description Streams the best cached match for the prompt, or a built-in sample, with the same events as a real run
// @Tags generation
// @Accept json
// @Produce text/event-stream
// @Param request body MockRequest true "Prompt"
// @Success 200 {string} string "event stream"
// @Security BearerAuth
// @Router /chat/mock [post]
func (h *Handler) MockChat(c *gin.Context) {
	var req MockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	sink := &sseSink{c: c, logger: h.logger}
	if _, err := h.service.Mock(c.Request.Context(), req.Message, req.ThreadID, sink); err != nil && !sink.hasStarted() {
		h.respondError(c, err, "Failed to replay response")
	}
}
