package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/service"
	"alcyxob/gym-notifier/internal/tracing"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Notifications *service.NotificationService
	Weekly        *service.WeeklySummaryService
	Cleanup       *service.CleanupService
	Reports       *service.ReportService
	Sessions      *service.SessionService
}

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	triggerToken string,
	svc Services,
	log *zap.Logger,
) {
	athleteHandler := NewAthleteHandler(svc.Weekly, svc.Sessions, log)
	sessionHandler := NewSessionHandler(svc.Sessions, log)
	reportHandler := NewReportHandler(svc.Reports, log)
	notificationHandler := NewNotificationHandler(svc.Notifications, log)
	triggerHandler := NewTriggerHandler(svc.Cleanup, svc.Weekly, log)

	router.Use(RequestLogger(log), monitoring.MetricsMiddleware(), tracing.GinMiddleware())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", monitoring.PrometheusHandler())

	staff := RoleMiddleware(domain.RoleCoach, domain.RoleGymAdmin, domain.RoleSystemAdmin)

	protected := router.Group("/api/v1")
	protected.Use(AuthMiddleware(jwtSecret))
	{
		athletes := protected.Group("/athletes/:athleteId")
		{
			athletes.POST("/weekly-summary", athleteHandler.GenerateWeeklySummary)
			athletes.GET("/sessions", athleteHandler.ListSessions)
		}

		sessions := protected.Group("/sessions")
		sessions.Use(RoleMiddleware(domain.RoleAthlete))
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.POST("/:id/exercises", sessionHandler.CompleteExercise)
			sessions.POST("/:id/finish", sessionHandler.FinishSession)
		}

		reports := protected.Group("/reports")
		reports.Use(staff)
		{
			reports.GET("/effort", reportHandler.GetEffortReport)
			reports.POST("/effort/export", reportHandler.ExportEffortReport)
		}

		protected.POST("/notifications", staff, notificationHandler.Send)
		protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	triggers := router.Group("/internal/triggers")
	triggers.Use(TriggerTokenMiddleware(triggerToken))
	{
		triggers.POST("/user-deleted", triggerHandler.UserDeleted)
		triggers.POST("/weekly-sweep", triggerHandler.WeeklySweep)
	}
}
