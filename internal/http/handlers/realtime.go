package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/http/response"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/realtime"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		Log: log.With("handler", "RealtimeHandler"),
		Hub: hub,
	}
}

// GET /api/runs/:id/stream
func (h *RealtimeHandler) StreamRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	h.stream(c, realtime.RunChannel(runID))
}

// GET /api/runs/stream
func (h *RealtimeHandler) StreamAll(c *gin.Context) {
	h.stream(c, realtime.ChannelAll)
}

func (h *RealtimeHandler) stream(c *gin.Context, channel string) {
	client := h.Hub.NewClient()
	h.Hub.AddChannel(client, channel)
	defer h.Hub.CloseClient(client)

	h.Log.Debug("SSE stream opened", "clientID", client.ID, "channel", channel)
	h.Hub.Serve(c.Writer, c.Request, client)
	h.Log.Debug("SSE stream closed", "clientID", client.ID, "channel", channel)
}
