// Package risk derives a coarse academic standing label from a student's
// rolling attendance percentage and average score. The classification is a
// pure threshold rule recomputed on demand; nothing here is cached.
package risk

// Level is a low/medium/high standing label.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Band edges. First matching band wins, so a value eligible for two bands
// resolves to the earlier check.
const (
	highAttendanceBelow = 60.0
	highScoreBelow      = 50.0
	mediumAttendanceTo  = 75.0
	mediumScoreTo       = 65.0
)

// Clamp bounds a percentage to [0,100]. Callers clamp before classifying.
func Clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Classify maps attendance percentage and average score to a Level.
// Evaluated in precedence order:
//
//	high   — attendance < 60 or score < 50
//	medium — attendance in [60,75] or score in [50,65]
//	low    — otherwise
//
// Total over in-range inputs; never returns anything but the three labels.
func Classify(attendancePercent, averageScore float64) Level {
	if attendancePercent < highAttendanceBelow || averageScore < highScoreBelow {
		return High
	}
	if attendancePercent <= mediumAttendanceTo || averageScore <= mediumScoreTo {
		return Medium
	}
	return Low
}
