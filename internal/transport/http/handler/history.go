package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ai-image-detector/internal/repository"
	"ai-image-detector/internal/transport/http/response"
)

type HistoryHandler struct {
	repo *repository.DetectionRepository
}

func NewHistoryHandler(repo *repository.DetectionRepository) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

func (h *HistoryHandler) List(c *gin.Context) {
	if !h.available(c) {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}
	label := strings.TrimSpace(c.Query("label"))

	items, err := h.repo.ListRecent(limit, label)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list detections failed")
		return
	}
	totals, err := h.repo.CountByLabel()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "count detections failed")
		return
	}

	response.OK(c, gin.H{"items": items, "totals": totals})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	if !h.available(c) {
		return
	}

	detection, err := h.repo.GetByDetectionID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get detection failed")
		return
	}
	if detection == nil {
		response.Error(c, http.StatusNotFound, response.CodeDetectionNotFound, "detection not found")
		return
	}

	response.OK(c, detection)
}

func (h *HistoryHandler) available(c *gin.Context) bool {
	if h.repo == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeHistoryUnavailable, "detection history is disabled")
		return false
	}
	return true
}
