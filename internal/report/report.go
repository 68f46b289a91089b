// Package report renders a student's standing into a fixed narrative and a
// seven-day plan. It performs no scoring of its own; every number it prints
// comes from the caller.
package report

import (
	"fmt"
	"strings"

	"edutrack/internal/risk"
)

// Report is the composed narrative plus a seven-entry day plan.
type Report struct {
	Narrative    string   `json:"narrative"`
	SevenDayPlan []string `json:"seven_day_plan"`
}

// Input carries everything Compose needs.
type Input struct {
	StudentName       string
	AttendancePercent float64
	AverageScore      float64
	WeakSkills        []string
	Risk              risk.Level
}

func attendanceSentence(name string, pct float64) string {
	switch {
	case pct >= 90:
		return fmt.Sprintf("%s has excellent attendance at %.1f%%, showing strong commitment to classes.", name, pct)
	case pct >= 75:
		return fmt.Sprintf("%s maintains acceptable attendance at %.1f%%, though there is room to be more regular.", name, pct)
	default:
		return fmt.Sprintf("%s has concerning attendance at %.1f%%, which puts academic standing at risk.", name, pct)
	}
}

func performanceSentence(pct float64) string {
	switch {
	case pct >= 80:
		return fmt.Sprintf("Academic performance is strong with an average score of %.1f.", pct)
	case pct >= 65:
		return fmt.Sprintf("Academic performance is satisfactory with an average score of %.1f, with clear scope for improvement.", pct)
	default:
		return fmt.Sprintf("Academic performance needs attention, with an average score of %.1f.", pct)
	}
}

// maintenancePlan keeps a well-performing student on track.
var maintenancePlan = []string{
	"Day 1: Review this week's lecture notes for 30 minutes.",
	"Day 2: Attempt one past-paper problem set under time limits.",
	"Day 3: Summarise one topic in your own words and note open questions.",
	"Day 4: Revise the summaries and clear the open questions with a peer or teacher.",
	"Day 5: Solve practice problems from the weakest recent topic.",
	"Day 6: Do a light full-syllabus skim; flag anything that feels rusty.",
	"Day 7: Rest, then plan the coming week's study blocks.",
}

func remediationPlan(weak []string) []string {
	first := weak[0]
	second := first
	if len(weak) > 1 {
		second = weak[1]
	}
	return []string{
		fmt.Sprintf("Day 1: Revisit the fundamentals of %s with textbook examples.", first),
		fmt.Sprintf("Day 2: Work five practice problems on %s and check each against solutions.", first),
		fmt.Sprintf("Day 3: Revisit the fundamentals of %s with textbook examples.", second),
		fmt.Sprintf("Day 4: Work five practice problems on %s and check each against solutions.", second),
		"Day 5: Attend office hours or ask a teacher about the problems you got wrong.",
		"Day 6: Re-attempt the wrong problems from memory.",
		"Day 7: Take a short self-test covering the week and record your score.",
	}
}

// Compose renders the narrative report. Weak skills are listed verbatim; the
// plan is the maintenance plan when there are none, otherwise the remediation
// plan naming up to two weak skills. Medium and high risk append extra
// guidance lines.
func Compose(in Input) Report {
	var b strings.Builder
	b.WriteString(attendanceSentence(in.StudentName, in.AttendancePercent))
	b.WriteString(" ")
	b.WriteString(performanceSentence(in.AverageScore))

	if len(in.WeakSkills) > 0 {
		b.WriteString("\n\nAreas needing work:\n")
		for _, s := range in.WeakSkills {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	switch in.Risk {
	case risk.High:
		b.WriteString("\n- Standing is currently high risk; attendance and scores both need immediate attention.")
		b.WriteString("\n- Meet your class teacher this week to agree a recovery plan.")
	case risk.Medium:
		b.WriteString("\n- Standing is medium risk; consistent attendance over the next month will move it back to safe.")
	}

	plan := maintenancePlan
	if len(in.WeakSkills) > 0 {
		plan = remediationPlan(in.WeakSkills)
	}

	return Report{
		Narrative:    b.String(),
		SevenDayPlan: plan,
	}
}
