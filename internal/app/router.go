package app

import (
	"learning_progress_backend/internal/middleware"
	"learning_progress_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	tracking := router.Group("/api/tracking")
	tracking.Use(middleware.TenantMiddleware())
	{
		// 1. 服务间接口：不针对单个学员
		tracking.POST("/signals", c.tracking.CompleteByExternalSignal)
		tracking.GET("/cohorts/:cohortId/report", c.report.GetCohortReport)
		tracking.POST("/courses/:courseId/recalculate", c.report.RecalculateProgress)

		// 2. 学员接口
		learner := tracking.Group("")
		learner.Use(middleware.LearnerMiddleware())
		a.registerLearnerRoutes(learner, c)
	}
}

func (a *App) registerLearnerRoutes(learner *gin.RouterGroup, c *controllers) {
	lessons := learner.Group("/lessons/:lessonId")
	{
		lessons.POST("/attempts", c.tracking.StartOrResume)
		lessons.POST("/attempts/start-over", c.tracking.StartOver)
		lessons.POST("/attempts/resume", c.tracking.Resume)
		lessons.GET("/status", c.tracking.GetLessonStatus)
	}

	attempts := learner.Group("/attempts/:attemptId")
	{
		attempts.GET("", c.tracking.GetAttempt)
		attempts.PATCH("/progress", c.tracking.UpdateProgress)
	}

	courses := learner.Group("/courses/:courseId")
	{
		courses.GET("", c.tracking.GetCourseTracking)
		courses.GET("/hierarchy", c.tracking.GetCourseHierarchy)
		courses.POST("/enrollment", c.enrollment.Enroll)
		courses.GET("/enrollment", c.enrollment.IsEnrolled)
		courses.GET("/enrollment/deletable", c.enrollment.CheckDeletable)
		courses.DELETE("/enrollment", c.enrollment.Delete)
	}

	learner.POST("/cohorts/:cohortId/batch-completion", c.report.CheckBatchCompletion)
}
