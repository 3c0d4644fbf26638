package planner

import (
	"mappo/internal/models"
	"strings"
)

// ReminderOffsetMinutes is the reminder placed before every scheduled experience.
const ReminderOffsetMinutes = -60

// Materialize builds the calendar event for pkg starting at option's start date.
func Materialize(pkg models.ExperiencePackage, option models.ScheduleOption) models.EventDraft {
	return models.EventDraft{
		Title:     pkg.Title,
		Location:  pkg.MeetingPoint,
		Notes:     pkg.Description + "\n\nRecomendaciones: " + strings.Join(pkg.Recommendations, " · "),
		StartDate: option.StartDate,
		EndDate:   option.StartDate.Add(pkg.Duration()),
		Alarms: []models.Alarm{
			{RelativeOffset: ReminderOffsetMinutes, Method: models.AlarmAlert},
		},
	}
}
