package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/hypermind-backend/internal/http/response"
	"github.com/yungbote/hypermind-backend/internal/services"
)

type PipelineHandler struct {
	runs services.RunService
}

func NewPipelineHandler(runs services.RunService) *PipelineHandler {
	return &PipelineHandler{runs: runs}
}

// GET /api/pipelines
func (h *PipelineHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"pipelines": h.runs.Pipelines()})
}
