package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-detector/internal/bootstrap"
	"ai-image-detector/internal/config"
	"ai-image-detector/internal/model"
	"ai-image-detector/internal/pkg/jwtutil"
	"ai-image-detector/internal/platform/database"
	httptransport "ai-image-detector/internal/transport/http"
	"ai-image-detector/internal/vision"
)

const secret = "test-secret"

type fixedModel struct {
	out []float32
}

func (m fixedModel) Predict(context.Context, *vision.Tensor) ([]float32, error) {
	return append([]float32(nil), m.out...), nil
}

func (fixedModel) Close() error { return nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type viewPayload struct {
	SessionID string `json:"session_id"`
	View      struct {
		State          string `json:"state"`
		Status         string `json:"status"`
		Progress       int    `json:"progress"`
		DetectEnabled  bool   `json:"detect_enabled"`
		ResultVisible  bool   `json:"result_visible"`
		ResultText     string `json:"result_text"`
		ConfidenceText string `json:"confidence_text"`
	} `json:"view"`
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:              "ai-image-detector",
			Env:               "test",
			GinMode:           "test",
			WebDir:            "web",
			MaxUploadMB:       1,
			SessionTTLMinutes: 5,
		},
		Auth:   config.AuthConfig{JWTSecret: secret, JWTExpireMinute: 5},
		Vision: config.VisionConfig{ModelPath: "detector.onnx", ModelTag: "test"},
	}
}

func newTestApp(t *testing.T, holder *vision.Holder, withDB bool) *bootstrap.App {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	app := &bootstrap.App{Config: testConfig(), Log: log, Holder: holder}
	if withDB {
		db, driver, err := database.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "detections.db"))
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(&model.Detection{}))
		app.DB = db
		app.DBDriver = driver
	}
	app.Assemble()
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 128, 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, gif.Encode(buf, image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White}), nil))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, name string, data []byte) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func createSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload viewPayload
	decode(t, rec, &payload)
	require.NotEmpty(t, payload.SessionID)
	return payload.SessionID
}

func TestSessionFlow(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), true)
	router := httptransport.NewRouter(app)

	id := createSession(t, router)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload viewPayload
	decode(t, rec, &payload)
	assert.Equal(t, "Model loaded! Ready to upload images", payload.View.Status)
	assert.False(t, payload.View.DetectEnabled)

	rec = serve(router, uploadRequest(t, "/api/v1/sessions/"+id+"/file", "photo.png", encodePNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &payload)
	assert.Equal(t, "file_pending", payload.View.State)
	assert.True(t, payload.View.DetectEnabled)

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/detect", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		DetectionID string        `json:"detection_id"`
		Result      vision.Result `json:"result"`
		View        struct {
			Status         string `json:"status"`
			Progress       int    `json:"progress"`
			ResultText     string `json:"result_text"`
			ConfidenceText string `json:"confidence_text"`
		} `json:"view"`
	}
	decode(t, rec, &result)
	assert.Equal(t, "Real", result.Result.Label)
	assert.Equal(t, 90.0, result.Result.Confidence)
	assert.Equal(t, "Detection complete!", result.View.Status)
	assert.Equal(t, 100, result.View.Progress)
	assert.Equal(t, "Confidence: 90%", result.View.ConfidenceText)

	token, err := jwtutil.GenerateToken(secret, "ops", "admin", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/"+result.DetectionID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored model.Detection
	decode(t, rec, &stored)
	assert.Equal(t, id, stored.SessionID)
	assert.Equal(t, "photo.png", stored.FileName)
	assert.Equal(t, 64, stored.Width)
}

func TestSelectFileRejectsUnsupportedType(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), false)
	router := httptransport.NewRouter(app)
	id := createSession(t, router)

	rec := serve(router, uploadRequest(t, "/api/v1/sessions/"+id+"/file", "document.gif", encodeGIF(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var payload viewPayload
	env := decode(t, rec, &payload)
	assert.Equal(t, 40001, env.Code)
	assert.Equal(t, "Error: Only JPG/PNG images are supported", payload.View.Status)
	assert.False(t, payload.View.DetectEnabled)

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/detect", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 40002, decode(t, rec, nil).Code)
}

func TestUnknownSession(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), false)
	router := httptransport.NewRouter(app)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 40401, decode(t, rec, nil).Code)
}

func TestDetectStream(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.73, 0.27}}), false)
	router := httptransport.NewRouter(app)
	id := createSession(t, router)

	rec := serve(router, uploadRequest(t, "/api/v1/sessions/"+id+"/file", "render.png", encodePNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/detect/stream", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 4, strings.Count(body, "event: progress\n"))
	assert.Contains(t, body, "Analyzing image for AI generation...")
	assert.Contains(t, body, "event: result\n")
	assert.Contains(t, body, `"label":"AI-generated"`)
	assert.NotContains(t, body, "event: error\n")
}

func TestDetectStreamWithoutModel(t *testing.T) {
	holder := vision.NewHolder()
	holder.MarkLoading()
	app := newTestApp(t, holder, false)
	router := httptransport.NewRouter(app)
	id := createSession(t, router)

	rec := serve(router, uploadRequest(t, "/api/v1/sessions/"+id+"/file", "photo.png", encodePNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload viewPayload
	decode(t, rec, &payload)
	assert.Equal(t, "model_loading", payload.View.State)
	assert.False(t, payload.View.DetectEnabled)

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/detect/stream", nil))
	body := rec.Body.String()
	assert.NotContains(t, body, "Processing image...")
	assert.Contains(t, body, "event: error\n")
}

func TestClassify(t *testing.T) {
	t.Run("loaded", func(t *testing.T) {
		app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.73, 0.27}}), false)
		router := httptransport.NewRouter(app)

		rec := serve(router, uploadRequest(t, "/api/v1/classify", "render.png", encodePNG(t)))
		require.Equal(t, http.StatusOK, rec.Code)
		var result struct {
			Result vision.Result `json:"result"`
		}
		decode(t, rec, &result)
		assert.Equal(t, "AI-generated", result.Result.Label)
		assert.Equal(t, 73.0, result.Result.Confidence)
	})

	t.Run("model not loaded", func(t *testing.T) {
		app := newTestApp(t, vision.NewHolder(), false)
		router := httptransport.NewRouter(app)

		rec := serve(router, uploadRequest(t, "/api/v1/classify", "render.png", encodePNG(t)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, 50301, decode(t, rec, nil).Code)
	})

	t.Run("missing field", func(t *testing.T) {
		app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.73, 0.27}}), false)
		router := httptransport.NewRouter(app)

		rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/classify", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHistoryRequiresToken(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), true)
	router := httptransport.NewRouter(app)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwtutil.GenerateToken(secret, "ops", "admin", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(router, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryDisabledWithoutDatabase(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), false)
	router := httptransport.NewRouter(app)

	token, err := jwtutil.GenerateToken(secret, "ops", "admin", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 50302, decode(t, rec, nil).Code)
}

func TestModelStatusAndHealth(t *testing.T) {
	app := newTestApp(t, vision.NewLoadedHolder(fixedModel{out: []float32{0.1, 0.9}}), true)
	router := httptransport.NewRouter(app)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		State    string `json:"state"`
		Tag      string `json:"tag"`
		Progress int    `json:"progress"`
	}
	decode(t, rec, &status)
	assert.Equal(t, "loaded", status.State)
	assert.Equal(t, "test", status.Tag)
	assert.Equal(t, 100, status.Progress)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Dependencies map[string]struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "sqlite", health.Dependencies["database"].Message)
	assert.Equal(t, "disabled", health.Dependencies["redis"].Message)
	assert.True(t, health.Dependencies["model"].OK)
}

func TestHealthReportsModelFailure(t *testing.T) {
	holder := vision.NewHolder()
	_ = holder.Load(context.Background(), func(context.Context) (vision.Model, error) {
		return nil, assert.AnError
	})
	app := newTestApp(t, holder, false)
	router := httptransport.NewRouter(app)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
