package icloud

import (
	"fmt"
	"mappo/internal/models"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

func newCalendar(children ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//mappo//ES")
	cal.Children = append(cal.Children, children...)
	return cal
}

// toICal converts a draft into a VEVENT with one VALARM per alarm.
func toICal(uid string, draft models.EventDraft, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, draft.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, draft.StartDate)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, draft.EndDate)

	if draft.Notes != "" {
		ve.Props.SetText(ical.PropDescription, draft.Notes)
	}
	if draft.Location != "" {
		ve.Props.SetText(ical.PropLocation, draft.Location)
	}
	for _, a := range draft.Alarms {
		ve.Children = append(ve.Children, toAlarm(a, draft.Title))
	}
	return ve
}

func toAlarm(a models.Alarm, title string) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	action := "DISPLAY"
	if a.Method == models.AlarmEmail {
		action = "EMAIL"
	}
	alarm.Props.SetText(ical.PropAction, action)
	alarm.Props.SetText(ical.PropDescription, title)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetDuration(a.Offset())
	alarm.Props.Set(trigger)
	return alarm
}

// applyPatch sets the patched fields on a VEVENT and refreshes its timestamp.
func applyPatch(ve *ical.Component, patch models.EventPatch, stamp time.Time) {
	setOrDelete := func(name string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			ve.Props.Del(name)
			return
		}
		ve.Props.SetText(name, *v)
	}
	setOrDelete(ical.PropSummary, patch.Title)
	setOrDelete(ical.PropLocation, patch.Location)
	setOrDelete(ical.PropDescription, patch.Notes)
	if patch.StartDate != nil {
		ve.Props.SetDateTime(ical.PropDateTimeStart, *patch.StartDate)
	}
	if patch.EndDate != nil {
		ve.Props.SetDateTime(ical.PropDateTimeEnd, *patch.EndDate)
	}
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
}

// fromICal reads a VEVENT stored at objectPath.
func fromICal(ev ical.Event, objectPath, calendarID string, loc *time.Location) (models.Event, error) {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return models.Event{}, fmt.Errorf("read DTSTART: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return models.Event{}, fmt.Errorf("read DTEND: %w", err)
	}
	if objectPath == "" {
		uid, _ := ev.Props.Text(ical.PropUID)
		objectPath = path.Join(calendarID, uid+".ics")
	}

	e := models.Event{
		ID:         objectPath,
		CalendarID: calendarID,
		StartDate:  start,
		EndDate:    end,
	}
	e.Title, _ = ev.Props.Text(ical.PropSummary)
	e.Location, _ = ev.Props.Text(ical.PropLocation)
	e.Notes, _ = ev.Props.Text(ical.PropDescription)

	for _, child := range ev.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil {
			continue
		}
		minutes, err := triggerMinutes(trigger)
		if err != nil {
			continue
		}
		method := models.AlarmAlert
		if action, _ := child.Props.Text(ical.PropAction); strings.EqualFold(action, "EMAIL") {
			method = models.AlarmEmail
		}
		e.Alarms = append(e.Alarms, models.Alarm{RelativeOffset: minutes, Method: method})
	}
	return e, nil
}

// triggerMinutes reads a relative TRIGGER as whole minutes. Absolute
// DATE-TIME triggers are rejected.
func triggerMinutes(trigger *ical.Prop) (int, error) {
	d, err := trigger.Duration()
	if err != nil {
		return 0, fmt.Errorf("invalid trigger %q: %w", trigger.Value, err)
	}
	return int(d / time.Minute), nil
}
