package http

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	"ai-image-detector/internal/bootstrap"
	"ai-image-detector/internal/transport/http/handler"
	"ai-image-detector/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = app.Config.MaxUploadBytes() + 1<<20

	healthHandler := handler.NewHealthHandler(app)
	router.StaticFile("/", filepath.Join(app.Config.App.WebDir, "index.html"))
	router.GET("/healthz", healthHandler.Check)

	detectHandler := handler.NewDetectHandler(app.Controller, app.DetectService, app.Config.MaxUploadBytes())
	modelHandler := handler.NewModelHandler(app.Controller, app.Config.ModelTag())
	historyHandler := handler.NewHistoryHandler(app.Detections)

	v1 := router.Group("/api/v1")
	v1.GET("/model", modelHandler.Status)
	v1.POST("/classify", detectHandler.Classify)

	sessionGroup := v1.Group("/sessions")
	sessionGroup.POST("", detectHandler.CreateSession)
	sessionGroup.GET("/:id", detectHandler.GetSession)
	sessionGroup.POST("/:id/file", detectHandler.SelectFile)
	sessionGroup.POST("/:id/detect", detectHandler.Detect)
	sessionGroup.POST("/:id/detect/stream", detectHandler.DetectStream)

	historyGroup := v1.Group("/history")
	historyGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	historyGroup.GET("", historyHandler.List)
	historyGroup.GET("/:id", historyHandler.Get)

	return router
}
