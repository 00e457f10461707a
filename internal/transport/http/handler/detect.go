package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ai-image-detector/internal/app"
	"ai-image-detector/internal/presenter"
	"ai-image-detector/internal/transport/http/response"
	"ai-image-detector/internal/vision"
)

type DetectHandler struct {
	controller *app.Controller
	detector   app.Detector
	maxUpload  int64
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	View      presenter.View `json:"view"`
}

type detectResponse struct {
	SessionID   string          `json:"session_id,omitempty"`
	DetectionID string          `json:"detection_id"`
	Result      *vision.Result  `json:"result"`
	Cached      bool            `json:"cached"`
	View        *presenter.View `json:"view,omitempty"`
}

func NewDetectHandler(controller *app.Controller, detector app.Detector, maxUpload int64) *DetectHandler {
	return &DetectHandler{controller: controller, detector: detector, maxUpload: maxUpload}
}

func (h *DetectHandler) CreateSession(c *gin.Context) {
	s := h.controller.CreateSession()
	response.OK(c, sessionResponse{SessionID: s.ID, View: s.View()})
}

func (h *DetectHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, sessionResponse{SessionID: s.ID, View: s.View()})
}

func (h *DetectHandler) SelectFile(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	file, err := readUpload(c, h.maxUpload)
	if err != nil {
		uploadError(c, err)
		return
	}

	view, err := s.SelectFile(file)
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrUnsupportedType):
			response.ErrorWithData(c, http.StatusBadRequest, response.CodeUnsupportedType, err.Error(), sessionResponse{SessionID: s.ID, View: view})
		case errors.Is(err, app.ErrDetectionInProgress):
			response.ErrorWithData(c, http.StatusConflict, response.CodeDetectionBusy, err.Error(), sessionResponse{SessionID: s.ID, View: view})
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "select file failed")
		}
		return
	}

	response.OK(c, sessionResponse{SessionID: s.ID, View: view})
}

func (h *DetectHandler) Detect(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	out, view, err := s.Detect(c.Request.Context(), nil)
	if err != nil {
		status, code := detectErrorStatus(err)
		response.ErrorWithData(c, status, code, err.Error(), sessionResponse{SessionID: s.ID, View: view})
		return
	}

	response.OK(c, detectResponse{
		SessionID:   s.ID,
		DetectionID: out.DetectionID,
		Result:      out.Result,
		Cached:      out.Cached,
		View:        &view,
	})
}

// DetectStream runs a detection and pushes every view change as an SSE
// "progress" event, followed by one "result" or "error" event.
func (h *DetectHandler) DetectStream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	send := func(event string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			data = []byte(fmt.Sprintf("%q", err.Error()))
		}
		if _, writeErr := c.Writer.Write([]byte("event: " + event + "\ndata: " + sanitizeSSE(string(data)) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
	}

	out, view, err := s.Detect(c.Request.Context(), func(v presenter.View) {
		send("progress", v)
	})
	if err != nil {
		send("error", gin.H{"message": err.Error(), "view": view})
		return
	}

	send("result", detectResponse{
		SessionID:   s.ID,
		DetectionID: out.DetectionID,
		Result:      out.Result,
		Cached:      out.Cached,
		View:        &view,
	})
}

// Classify runs a one-shot detection without a session.
func (h *DetectHandler) Classify(c *gin.Context) {
	file, err := readUpload(c, h.maxUpload)
	if err != nil {
		uploadError(c, err)
		return
	}

	out, err := h.detector.Detect(c.Request.Context(), app.DetectInput{File: file}, nil)
	if err != nil {
		status, code := detectErrorStatus(err)
		response.Error(c, status, code, err.Error())
		return
	}

	response.OK(c, detectResponse{
		DetectionID: out.DetectionID,
		Result:      out.Result,
		Cached:      out.Cached,
	})
}

func (h *DetectHandler) session(c *gin.Context) (*app.Session, bool) {
	s, err := h.controller.Session(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func detectErrorStatus(err error) (int, int) {
	var decodeErr *vision.DecodeError
	switch {
	case errors.Is(err, app.ErrNoFile):
		return http.StatusBadRequest, response.CodeNoFile
	case errors.Is(err, vision.ErrUnsupportedType):
		return http.StatusBadRequest, response.CodeUnsupportedType
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, response.CodeBadRequest
	case errors.Is(err, app.ErrDetectionInProgress):
		return http.StatusConflict, response.CodeDetectionBusy
	case errors.Is(err, vision.ErrModelNotLoaded):
		return http.StatusServiceUnavailable, response.CodeModelUnavailable
	default:
		return http.StatusUnprocessableEntity, response.CodeDetectionFailed
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
