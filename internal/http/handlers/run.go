package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	"github.com/yungbote/hypermind-backend/internal/http/response"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/services"
)

type RunHandler struct {
	runs services.RunService
}

func NewRunHandler(runs services.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// GET /api/runs?pipeline=&status=&limit=
func (h *RunHandler) ListRuns(c *gin.Context) {
	f := pipelines.RunFilter{
		PipelineID: c.Query("pipeline"),
		Status:     c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		f.Limit = n
	}
	runs, err := h.runs.ListRuns(dbctx.Context{Ctx: c.Request.Context()}, f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetRun(dbctx.Context{Ctx: c.Request.Context()}, runID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/runs/:id/steps
func (h *RunHandler) ListSteps(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	steps, err := h.runs.ListSteps(dbctx.Context{Ctx: c.Request.Context()}, runID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"steps": steps})
}
