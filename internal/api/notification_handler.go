package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/service"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	log           *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

// SendNotificationRequest is a typed notification; data must match type.
type SendNotificationRequest struct {
	Type      domain.NotificationType `json:"type" binding:"required"`
	CoachID   string                  `json:"coachId"`
	AthleteID string                  `json:"athleteId"`
	GymID     string                  `json:"gymId"`
	Message   string                  `json:"message"`
	Data      json.RawMessage         `json:"data"`
}

func (h *NotificationHandler) Send(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	payload, err := domain.DecodePayloadJSON(req.Type, req.Data)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid notification data: "+err.Error())
		return
	}

	id, err := h.notifications.Send(c.Request.Context(), service.SendRequest{
		CoachID:   req.CoachID,
		AthleteID: req.AthleteID,
		GymID:     req.GymID,
		Payload:   payload,
		Message:   req.Message,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
