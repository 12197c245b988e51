package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/service"
)

// AthleteHandler serves the athlete scoped reads and the on-demand weekly resume.
type AthleteHandler struct {
	weekly   *service.WeeklySummaryService
	sessions *service.SessionService
	log      *zap.Logger
}

func NewAthleteHandler(weekly *service.WeeklySummaryService, sessions *service.SessionService, log *zap.Logger) *AthleteHandler {
	return &AthleteHandler{weekly: weekly, sessions: sessions, log: log}
}

// WeeklySummaryRequest is optional; an empty body uses the current time.
type WeeklySummaryRequest struct {
	CoachID     string    `json:"coachId"`
	AthleteName string    `json:"athleteName"`
	Reference   time.Time `json:"reference"`
}

// GenerateWeeklySummary godoc
// @Summary Generate the athlete's weekly resume if due
// @Tags Athletes
// @Security BearerAuth
// @Param athleteId path string true "Athlete ID"
// @Success 200 {object} service.SummaryResult
// @Router /athletes/{athleteId}/weekly-summary [post]
func (h *AthleteHandler) GenerateWeeklySummary(c *gin.Context) {
	athleteID := c.Param("athleteId")
	if !authorizeAthlete(c, athleteID) {
		return
	}

	var req WeeklySummaryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	res, err := h.weekly.GenerateForAthlete(c.Request.Context(), service.SummaryRequest{
		AthleteID:   athleteID,
		CoachID:     req.CoachID,
		AthleteName: req.AthleteName,
		Reference:   req.Reference,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListSessions returns the athlete's sessions and runs the weekly resume fallback.
func (h *AthleteHandler) ListSessions(c *gin.Context) {
	athleteID := c.Param("athleteId")
	if !authorizeAthlete(c, athleteID) {
		return
	}

	out, err := h.sessions.ListAthleteSessions(c.Request.Context(), athleteID, time.Time{})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	if out.Sessions == nil {
		out.Sessions = []domain.TrainingSession{}
	}
	c.JSON(http.StatusOK, out)
}
