package models

import "time"

// EntityType classifies calendar containers. Only event calendars are used.
type EntityType string

const (
	EntityEvent    EntityType = "event"
	EntityReminder EntityType = "reminder"
)

// AccessLevel is the ownership level requested when creating a calendar.
type AccessLevel string

const (
	AccessOwner  AccessLevel = "owner"
	AccessEditor AccessLevel = "editor"
	AccessRead   AccessLevel = "read"
)

// AlarmMethod is how a reminder is delivered by the provider.
type AlarmMethod string

const (
	AlarmAlert AlarmMethod = "alert"
	AlarmEmail AlarmMethod = "email"
)

// Source is a provider-specific grouping (usually an account) that owns calendars.
type Source struct {
	ID             string
	Name           string
	Type           string
	IsLocalAccount bool
}

// CalendarHandle identifies a calendar on the host provider.
// Handles are only ever obtained from a provider.
type CalendarHandle struct {
	ID                  string
	Title               string
	AllowsModifications bool
	IsPrimary           bool
	Source              *Source // nil when the provider reports none
}

// CalendarConfig describes a calendar to be created by a provider.
// Source and SourceID are alternatives; which one is set depends on the platform family.
type CalendarConfig struct {
	Title        string
	Name         string
	Color        string
	EntityType   EntityType
	AccessLevel  AccessLevel
	OwnerAccount string
	Source       *Source
	SourceID     string
}

// Alarm is a reminder relative to the event start.
type Alarm struct {
	RelativeOffset int // minutes, negative means before start
	Method         AlarmMethod
}

// Offset returns the alarm offset as a duration.
func (a Alarm) Offset() time.Duration {
	return time.Duration(a.RelativeOffset) * time.Minute
}

// EventDraft is the body handed to a provider's create-event operation.
type EventDraft struct {
	Title     string
	Location  string
	Notes     string
	StartDate time.Time
	EndDate   time.Time
	Alarms    []Alarm
}

// Event is a calendar event as stored by a provider.
type Event struct {
	ID         string
	CalendarID string
	Title      string
	Location   string
	Notes      string
	StartDate  time.Time
	EndDate    time.Time
	Alarms     []Alarm
}

// EventPatch holds the fields to change on an existing event. Nil fields are left untouched.
type EventPatch struct {
	Title     *string
	Location  *string
	Notes     *string
	StartDate *time.Time
	EndDate   *time.Time
}

// Apply copies the set fields of the patch onto e.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		e.EndDate = *p.EndDate
	}
}
