package app

import (
	"video_quiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.GET("/health", c.health.HealthCheck)

	a.registerVideoRoutes(api, c)
	a.registerQuizRoutes(api, c)
}

func (a *App) registerVideoRoutes(rg *gin.RouterGroup, c *controllers) {
	videos := rg.Group("/videos")
	{
		videos.POST("", c.video.CreateVideo)
		videos.GET("", c.video.ListVideos)
		videos.GET("/:id", c.video.GetVideo)
		videos.GET("/:id/segments", c.video.GetSegments)
		videos.DELETE("/:id", c.video.DeleteVideo)

		videos.POST("/:id/quizzes", c.quiz.CreateQuiz)
		videos.GET("/:id/quizzes", c.quiz.ListQuizzes)

		videos.POST("/:id/ask", c.qa.Ask)
		videos.POST("/:id/ask/stream", c.qa.AskStream)
	}
}

func (a *App) registerQuizRoutes(rg *gin.RouterGroup, c *controllers) {
	quizzes := rg.Group("/quizzes")
	{
		quizzes.GET("/:sessionId", c.quiz.GetQuiz)
		quizzes.POST("/:sessionId/answers", c.quiz.SubmitAnswer)
	}
}
