package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"ai-image-detector/internal/app"
	"ai-image-detector/internal/presenter"
	"ai-image-detector/internal/transport/http/response"
)

type ModelHandler struct {
	controller *app.Controller
	tag        string
}

type modelStatusResponse struct {
	State    string     `json:"state"`
	Tag      string     `json:"tag"`
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func NewModelHandler(controller *app.Controller, tag string) *ModelHandler {
	return &ModelHandler{controller: controller, tag: tag}
}

func (h *ModelHandler) Status(c *gin.Context) {
	m := h.controller.Model()
	status, progress := presenter.ModelStatus(m)

	resp := modelStatusResponse{
		State:    m.State.String(),
		Tag:      h.tag,
		Status:   status,
		Progress: progress,
	}
	if !m.LoadedAt.IsZero() {
		loadedAt := m.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	if m.Err != nil {
		resp.Error = m.Err.Error()
	}
	response.OK(c, resp)
}
