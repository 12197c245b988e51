package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/service"
)

type ReportHandler struct {
	reports *service.ReportService
	log     *zap.Logger
}

func NewReportHandler(reports *service.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, log: log}
}

// EffortReportQuery selects a coach or a gym; lookbackDays <= 0 uses the default.
type EffortReportQuery struct {
	domain.ReportSelector
	LookbackDays int `form:"lookbackDays" json:"lookbackDays"`
}

// GetEffortReport godoc
// @Summary Per-category effort and duration report
// @Tags Reports
// @Security BearerAuth
// @Param coachId query string false "Coach ID"
// @Param gymId query string false "Gym ID"
// @Param lookbackDays query int false "Window in days"
// @Success 200 {object} domain.EffortReport
// @Router /reports/effort [get]
func (h *ReportHandler) GetEffortReport(c *gin.Context) {
	var q EffortReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if !h.authorizeSelector(c, q.ReportSelector) {
		return
	}

	report, err := h.reports.BuildEffortReport(c.Request.Context(), q.ReportSelector, q.LookbackDays)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportEffortReport archives the report and returns a download link.
func (h *ReportHandler) ExportEffortReport(c *gin.Context) {
	var q EffortReportQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if !h.authorizeSelector(c, q.ReportSelector) {
		return
	}

	res, err := h.reports.ExportEffortReport(c.Request.Context(), q.ReportSelector, q.LookbackDays)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.URL, "objectKey": res.ObjectKey})
}

// authorizeSelector keeps coaches on their own reports.
func (h *ReportHandler) authorizeSelector(c *gin.Context, sel domain.ReportSelector) bool {
	role, _ := getUserRoleFromContext(c)
	if role != domain.RoleCoach {
		return true
	}
	uid, _ := getUserIDFromContext(c)
	if sel.CoachID != "" && sel.CoachID != uid {
		abortWithError(c, http.StatusForbidden, "Coaches can only read their own reports.")
		return false
	}
	return true
}
