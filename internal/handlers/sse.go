package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewSSEHandler(log *logger.Logger, hub *sse.Hub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /api/courses/:id/events
//
// Streams stage lifecycle events for one course until the client hangs up.
func (h *SSEHandler) StreamCourseEvents(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("response writer cannot flush"))
		return
	}

	client := h.hub.NewClient()
	h.hub.Subscribe(client, courseID.String())
	defer h.hub.Remove(client)

	h.log.Info("SSE stream open", "client_id", client.ID, "course_id", courseID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("SSE stream closed by client", "client_id", client.ID)
			return
		case <-client.Done():
			return
		case msg := <-client.Outbound:
			raw, err := json.Marshal(msg.Data)
			if err != nil {
				h.log.Warn("SSE payload marshal failed", "error", err, "event", msg.Event)
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}
