package planner

import (
	"context"
	"fmt"
	"mappo/internal/models"
	"strings"
	"time"
)

// PermissionStatus is the answer of a provider to a permission request.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Platform selects the calendar model quirks the resolver follows.
type Platform string

const (
	// PlatformIOS exposes a default calendar and requires an explicit source id for new calendars.
	PlatformIOS Platform = "ios"
	// PlatformAndroid has no default calendar and accepts a synthesized local account source.
	PlatformAndroid Platform = "android"
)

// ParsePlatform converts a configuration value into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ios":
		return PlatformIOS, nil
	case "android", "":
		return PlatformAndroid, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// CalendarProvider is the host calendar capability.
type CalendarProvider interface {
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	ListCalendars(ctx context.Context, entityType models.EntityType) ([]models.CalendarHandle, error)
	// DefaultCalendar returns nil without error when the host has no default calendar.
	DefaultCalendar(ctx context.Context) (*models.CalendarHandle, error)
	CreateCalendar(ctx context.Context, cfg models.CalendarConfig) (string, error)
	CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (string, error)
	UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) error
	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, calendarIDs []string, start, end time.Time) ([]models.Event, error)
}

// RemindersPermissionRequester is implemented by providers that keep a separate
// reminders permission.
type RemindersPermissionRequester interface {
	RequestRemindersPermission(ctx context.Context) (PermissionStatus, error)
}
