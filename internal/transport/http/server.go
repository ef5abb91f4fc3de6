package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/transport/http/handler"
	"gopherai-docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.CORS(app.Config.App.CORSOrigins))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	fileHandler := handler.NewFileHandler(app.FileService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	RegisterAPI(router, app.Config.Auth.JWTSecret, fileHandler, chatHandler)

	return router
}

// RegisterAPI mounts the authenticated /api/v1 routes.
func RegisterAPI(router *gin.Engine, jwtSecret string, fileHandler *handler.FileHandler, chatHandler *handler.ChatHandler) {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(jwtSecret))

	files := v1.Group("/files")
	files.POST("/finalize", fileHandler.Finalize)
	files.GET("/:id", fileHandler.Get)
	files.POST("/:id/retry", fileHandler.Retry)
	files.DELETE("/:id", fileHandler.Delete)

	v1.POST("/chat", chatHandler.Send)
}
