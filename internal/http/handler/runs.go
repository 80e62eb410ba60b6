package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clinichire.app/scout/internal/http/dto"
	"clinichire.app/scout/internal/service"
	"clinichire.app/scout/internal/store"
)

const defaultStatsWindow = 24 * time.Hour

type RunHandler struct {
	runService service.RunService
}

func NewRunHandler(runService service.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

// Get handles GET /extractions/:id.
func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	extractionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || extractionID <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid extraction id"})
		return
	}

	ev, err := h.runService.Get(ctx, extractionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "extraction not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get extraction run", "error", err, "extraction_id", extractionID)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to get extraction run", Retryable: true})
		return
	}

	c.JSON(http.StatusOK, dto.FromEvent(ev))
}

// Stats handles GET /extractions/stats?since=24h.
func (h *RunHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	window := defaultStatsWindow
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > service.MaxStatsWindow {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "since must be a duration up to 720h"})
			return
		}
		window = d
	}

	stats, err := h.runService.Stats(ctx, window)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count extraction runs", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to count extraction runs", Retryable: true})
		return
	}

	c.JSON(http.StatusOK, dto.FromRunStats(stats))
}
