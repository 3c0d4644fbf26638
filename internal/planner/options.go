package planner

import (
	"fmt"
	"mappo/internal/models"
	"time"
)

const (
	OptionTomorrow = "tomorrow"
	OptionWeekend  = "weekend"
	OptionSunset   = "sunset"
)

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// GenerateOptions returns the three candidate start times offered relative to now.
// Times are computed in now's location.
func GenerateOptions(now time.Time) []models.ScheduleOption {
	tomorrow := dayAt(now.AddDate(0, 0, 1), 10)
	saturday := nextWeekday(now, time.Saturday, 9)
	wednesday := nextWeekday(now, time.Wednesday, 17)

	return []models.ScheduleOption{
		{
			ID:        OptionTomorrow,
			Label:     fmt.Sprintf("Mañana (%s) · 10:00", formatSpanishDate(tomorrow)),
			StartDate: tomorrow,
		},
		{
			ID:        OptionWeekend,
			Label:     fmt.Sprintf("Próximo sábado (%s) · 09:00", formatSpanishDate(saturday)),
			StartDate: saturday,
		},
		{
			ID:        OptionSunset,
			Label:     fmt.Sprintf("Tarde cultural (%s) · 17:00", formatSpanishDate(wednesday)),
			StartDate: wednesday,
		},
	}
}

// FindOption returns the option with the given id.
func FindOption(options []models.ScheduleOption, id string) (models.ScheduleOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return models.ScheduleOption{}, false
}

// nextWeekday returns the next target weekday strictly after today's date, 1 to 7 days ahead.
func nextWeekday(now time.Time, target time.Weekday, hour int) time.Time {
	delta := int(target) - int(now.Weekday())
	if delta <= 0 {
		delta += 7
	}
	return dayAt(now.AddDate(0, 0, delta), hour)
}

func dayAt(t time.Time, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, t.Location())
}

// formatSpanishDate renders t like es-ES "lunes, 10 de junio".
func formatSpanishDate(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s", spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1])
}
