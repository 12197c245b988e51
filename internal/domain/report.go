package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UncategorizedCategory collects plan items that resolve to no catalog entry.
const UncategorizedCategory = "uncategorized"

// MissingValue is rendered for statistics without samples.
const MissingValue = "—"

// EffortStats aggregates finished workouts. Duration figures only cover the
// samples that carried a valid duration.
type EffortStats struct {
	TotalSessions        int         `json:"totalSessions"`
	MeanEffort           *float64    `json:"meanEffort"`
	EffortHistogram      map[int]int `json:"effortHistogram"`
	DurationSamples      int         `json:"durationSamples"`
	TotalDurationSeconds int64       `json:"totalDurationSeconds"`
	MeanDurationSeconds  *float64    `json:"meanDurationSeconds"`
}

// NewEffortStats returns zero stats with every histogram bucket present.
func NewEffortStats() EffortStats {
	h := make(map[int]int, MaxEffortLevel)
	for level := MinEffortLevel; level <= MaxEffortLevel; level++ {
		h[level] = 0
	}
	return EffortStats{EffortHistogram: h}
}

// FormattedMeanEffort renders the mean effort as "3,5/5", or "—".
func (s EffortStats) FormattedMeanEffort() string {
	if s.MeanEffort == nil {
		return MissingValue
	}
	return FormatEffort(*s.MeanEffort)
}

// FormattedMeanDuration renders the mean duration as HH:MM:SS, or "—".
func (s EffortStats) FormattedMeanDuration() string {
	if s.MeanDurationSeconds == nil {
		return MissingValue
	}
	return FormatDuration(int64(math.Round(*s.MeanDurationSeconds)))
}

// FormattedTotalDuration renders the total duration as HH:MM:SS, or "—".
func (s EffortStats) FormattedTotalDuration() string {
	if s.DurationSamples == 0 {
		return MissingValue
	}
	return FormatDuration(s.TotalDurationSeconds)
}

type CategoryReport struct {
	Category string `json:"category"`
	EffortStats
}

// ReportSelector scopes a report to a coach or to a gym, never both.
type ReportSelector struct {
	CoachID string `json:"coachId,omitempty" form:"coachId"`
	GymID   string `json:"gymId,omitempty" form:"gymId"`
}

// Key identifies the selector in logs, metrics and archive paths.
func (s ReportSelector) Key() string {
	if s.CoachID != "" {
		return "coach/" + s.CoachID
	}
	return "gym/" + s.GymID
}

// EffortReport is the per-category effort/time report. It is computed on
// demand and never persisted in the document store.
type EffortReport struct {
	Selector     ReportSelector `json:"selector"`
	LookbackDays int            `json:"lookbackDays"`
	Since        time.Time      `json:"since"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	EffortStats
	Categories []CategoryReport `json:"categories"`
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatEffort renders an effort mean with a comma decimal separator, e.g.
// 3 -> "3/5" and 3.5 -> "3,5/5".
func FormatEffort(v float64) string {
	s := strconv.FormatFloat(Round1(v), 'f', -1, 64)
	return strings.Replace(s, ".", ",", 1) + "/5"
}

// FormatDuration renders seconds as zero padded HH:MM:SS.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
