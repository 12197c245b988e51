package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/service"
)

// TriggerHandler exposes the event and schedule driven jobs as webhooks.
type TriggerHandler struct {
	cleanup *service.CleanupService
	weekly  *service.WeeklySummaryService
	log     *zap.Logger
}

func NewTriggerHandler(cleanup *service.CleanupService, weekly *service.WeeklySummaryService, log *zap.Logger) *TriggerHandler {
	return &TriggerHandler{cleanup: cleanup, weekly: weekly, log: log}
}

type WeeklySweepRequest struct {
	Reference time.Time `json:"reference"`
}

func (h *TriggerHandler) UserDeleted(c *gin.Context) {
	var ev service.UserDeletedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	res, err := h.cleanup.HandleUserDeleted(c.Request.Context(), ev)
	if err != nil {
		// partial progress is still reported to the caller
		code := statusFor(err)
		h.log.Warn("user deleted trigger incomplete", zap.String("user_id", ev.ID), zap.Error(err))
		c.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TriggerHandler) WeeklySweep(c *gin.Context) {
	var req WeeklySweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	res, err := h.weekly.RunSweep(c.Request.Context(), req.Reference)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
