package logger

// Standard field names for consistent logging.
const (
	FieldService    = "service"
	FieldOperation  = "operation"
	FieldRunID      = "run_id"
	FieldAthleteID  = "athlete_id"
	FieldCollection = "collection"
	FieldWeekKey    = "week_key"
	FieldSelector   = "selector"
)
