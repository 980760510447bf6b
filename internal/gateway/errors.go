package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/orchestration"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/storage"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/workspace"
)

func badRequest(c *gin.Context, message string, err error) {
	resp := models.ErrorResponse{Error: message, Code: models.ErrCodeInvalidRequest}
	if err != nil {
		resp.Details = map[string]string{"reason": err.Error()}
	}
	c.JSON(http.StatusBadRequest, resp)
}

// respondError maps service errors onto HTTP responses
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var failure *generation.Failure
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Not found", Code: models.ErrCodeNotFound})
	case errors.Is(err, workspace.ErrComponentNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeComponentNotFound})
	case errors.Is(err, history.ErrIndexOutOfRange):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeHistoryIndex})
	case errors.Is(err, orchestration.ErrInvalidViewport):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeValidationFailed})
	case errors.As(err, &failure):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:       failure.Classification.UserMessage,
			Code:        models.ErrCodeGenerationFailed,
			Suggestions: failure.Classification.Suggestions,
		})
	case llm.KindOf(err) != llm.KindUnknown:
		cls := generation.Classify(err, 1, 1)
		status, code := http.StatusBadGateway, models.ErrCodeSurgicalEdit
		if cls.Kind == llm.KindAuth || cls.Kind == llm.KindServiceUnavailable {
			status, code = http.StatusServiceUnavailable, models.ErrCodeLLMUnavailable
		}
		c.JSON(status, models.ErrorResponse{Error: cls.UserMessage, Code: code, Suggestions: cls.Suggestions})
	default:
		h.logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fallback, Code: models.ErrCodeInternalError})
	}
}
