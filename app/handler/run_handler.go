package handler

import (
	"errors"
	"net/http"
	"strconv"

	"stagecost/internal/service"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RunHandler handles run history HTTP requests
type RunHandler struct {
	runService     *service.RunService
	refreshService *service.RefreshService
}

// NewRunHandler creates a new run handler. refreshService may be nil, in
// which case on-demand refresh is unavailable.
func NewRunHandler(runService *service.RunService, refreshService *service.RefreshService) *RunHandler {
	return &RunHandler{
		runService:     runService,
		refreshService: refreshService,
	}
}

// ListRuns lists recorded runs
// @Summary List analyzed runs
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs (default 20)"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	runs, err := h.runService.ListRuns(c.Request.Context(), limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetLatestRun returns the most recently analyzed run
// @Summary Get the latest run
// @Tags runs
// @Produce json
// @Success 200 {object} interfaces.RunRecord
// @Router /api/v1/runs/latest [get]
func (h *RunHandler) GetLatestRun(c *gin.Context) {
	run, err := h.runService.LatestRun(c.Request.Context())
	h.respond(c, run, err)
}

// GetRun returns one run by id
// @Summary Get a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} interfaces.RunRecord
// @Router /api/v1/runs/{id} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runService.GetRun(c.Request.Context(), c.Param("id"))
	h.respond(c, run, err)
}

// RefreshRun re-analyzes the configured run now
// @Summary Re-analyze the configured run
// @Tags runs
// @Produce json
// @Success 200 {object} interfaces.RunRecord
// @Router /api/v1/runs/refresh [post]
func (h *RunHandler) RefreshRun(c *gin.Context) {
	if h.refreshService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh is not configured"})
		return
	}
	run, err := h.refreshService.Refresh(c.Request.Context())
	if errors.Is(err, service.ErrRefreshInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, run, err)
}

func (h *RunHandler) respond(c *gin.Context, run *interfaces.RunRecord, err error) {
	switch {
	case errors.Is(err, interfaces.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		logger.ErrorCtx(c.Request.Context(), "run request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, run)
	}
}
