package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
)

const wsWriteTimeout = 10 * time.Second

type websocketUpgrader = websocket.Upgrader

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
				return true
			}
			for _, allowed := range strings.Split(allowedOrigin, ",") {
				if strings.EqualFold(strings.TrimSpace(allowed), origin) {
					return true
				}
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// wsSink writes each event as one JSON text frame
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Emit(event generation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(event)
}

// GenerationSocket godoc
// @Summary Run a generation over WebSocket
// @Description The first text frame carries the StreamRequest. Lifecycle events are sent back as JSON frames and the socket closes when the run ends. Closing the socket cancels the run.
// @Tags generation
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/generate [get]
func (h *Handler) GenerationSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	ctx, span := h.tracer.Start(ctx, "gateway.generation_socket")
	defer span.End()

	var req StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Warn("invalid generation request frame", zap.Error(err))
		closeWith(conn, websocket.CloseUnsupportedData, "invalid request")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "message is required")
		return
	}
	span.SetAttributes(
		attribute.String("project.id", req.ProjectID),
		attribute.String("user.id", c.GetString("user_id")),
	)

	// Any read after the request frame is either a close or noise; a read
	// error means the client is gone.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sink := &wsSink{conn: conn}
	result, err := h.service.Generate(ctx, req.ProjectID, req.Request, sink)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("websocket generation failed",
			zap.String("project_id", req.ProjectID),
			zap.Error(err),
		)
		if ctx.Err() == nil {
			sink.mu.Lock()
			closeWith(conn, websocket.CloseInternalServerErr, "generation failed")
			sink.mu.Unlock()
		}
		return
	}

	h.logger.Info("websocket generation finished",
		zap.String("project_id", req.ProjectID),
		zap.String("run_id", result.RunID),
		zap.Int("attempts", result.Attempts),
	)
	sink.mu.Lock()
	closeWith(conn, websocket.CloseNormalClosure, "")
	sink.mu.Unlock()
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second))
}
