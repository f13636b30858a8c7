package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/verisafe/service"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router
func SetupRouter(ctrl *service.Controller, sessions *service.SessionService, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewHandlers(ctrl, sessions, logger)

	router.GET("/healthz", handlers.Health)

	view := router.Group("/view")
	{
		view.GET("", handlers.GetView)
		view.PUT("", handlers.PutView)
		view.POST("/reset", SessionMiddleware(sessions), handlers.ResetView)
	}

	wallet := router.Group("/wallet")
	{
		wallet.POST("/connect", handlers.Connect)
		wallet.POST("/disconnect", SessionMiddleware(sessions), handlers.Disconnect)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(SessionMiddleware(sessions))
	{
		api.GET("/session", handlers.Session)
		api.POST("/verify", handlers.Verify)
	}

	return router
}
