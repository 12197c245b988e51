package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	log      *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// --- DTOs ---
type StartSessionRequest struct {
	PlanID    string    `json:"planId" binding:"required"`
	StartTime time.Time `json:"startTime"`
}

type CompleteExerciseRequest struct {
	ExerciseID string  `json:"exerciseId"`
	Name       string  `json:"name" binding:"required"`
	Sets       int     `json:"sets" binding:"gte=0"`
	Reps       int     `json:"reps" binding:"gte=0"`
	WeightKg   float64 `json:"weightKg" binding:"gte=0"`
}

type FinishSessionRequest struct {
	EffortLevel     int       `json:"effortLevel" binding:"required,min=1,max=5"`
	Feedback        string    `json:"feedback" binding:"max=1000"`
	DurationSeconds *int64    `json:"durationSeconds" binding:"omitempty,gte=0"`
	EndTime         time.Time `json:"endTime"`
}

// StartSession opens a session for the authenticated athlete.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	athleteID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify athlete from token.")
		return
	}

	session, err := h.sessions.StartSession(c.Request.Context(), service.StartSessionRequest{
		AthleteID: athleteID,
		PlanID:    req.PlanID,
		StartTime: req.StartTime,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) CompleteExercise(c *gin.Context) {
	var req CompleteExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if !h.ownsSession(c) {
		return
	}

	session, err := h.sessions.CompleteExercise(c.Request.Context(), c.Param("id"), domain.ExerciseRecord{
		ExerciseID: req.ExerciseID,
		Name:       req.Name,
		Sets:       req.Sets,
		Reps:       req.Reps,
		WeightKg:   req.WeightKg,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) FinishSession(c *gin.Context) {
	var req FinishSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if !h.ownsSession(c) {
		return
	}

	session, err := h.sessions.FinishSession(c.Request.Context(), service.FinishSessionRequest{
		SessionID:       c.Param("id"),
		EffortLevel:     req.EffortLevel,
		Feedback:        req.Feedback,
		DurationSeconds: req.DurationSeconds,
		EndTime:         req.EndTime,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ownsSession aborts unless the caller is the session's athlete.
func (h *SessionHandler) ownsSession(c *gin.Context) bool {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.log, err)
		return false
	}
	uid, err := getUserIDFromContext(c)
	if err != nil || uid != session.AthleteID {
		abortWithError(c, http.StatusForbidden, "Access denied to this session.")
		return false
	}
	return true
}
