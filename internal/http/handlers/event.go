package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/http/response"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/services"
)

type EventHandler struct {
	runs services.RunService
}

func NewEventHandler(runs services.RunService) *EventHandler {
	return &EventHandler{runs: runs}
}

type publishRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// POST /api/events
func (h *EventHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_event_name", nil)
		return
	}
	var payload any = map[string]any{}
	if len(req.Data) > 0 && string(req.Data) != "null" {
		payload = req.Data
	}
	id, err := h.runs.Publish(dbctx.Context{Ctx: c.Request.Context()}, name, payload)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"eventId": id})
}

// GET /api/events/:id/runs
func (h *EventHandler) ListRuns(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_event_id", err)
		return
	}
	out, err := h.runs.EventRuns(dbctx.Context{Ctx: c.Request.Context()}, eventID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}
