package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aulalink/aulalink-backend/internal/http/handlers"
)

type RouterConfig struct {
	AnnotationHandler *handlers.AnnotationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/submissions/:id/artifacts", cfg.AnnotationHandler.SubmissionArtifacts)

		sessions := api.Group("/annotation/sessions")
		sessions.POST("", cfg.AnnotationHandler.OpenSession)
		sessions.POST("/:id/page", cfg.AnnotationHandler.GoToPage)
		sessions.GET("/:id/page.png", cfg.AnnotationHandler.PageImage)
		sessions.POST("/:id/stroke", cfg.AnnotationHandler.Stroke)
		sessions.POST("/:id/text", cfg.AnnotationHandler.Text)
		sessions.POST("/:id/clear", cfg.AnnotationHandler.ClearPage)
		sessions.POST("/:id/save", cfg.AnnotationHandler.Save)
		sessions.DELETE("/:id", cfg.AnnotationHandler.CloseSession)
	}

	return router
}
