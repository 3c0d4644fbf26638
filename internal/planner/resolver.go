package planner

import (
	"context"
	"log/slog"
	"mappo/internal/models"
)

const (
	opRequestPermission = "request permission"
	opListCalendars     = "list calendars"
	opDefaultCalendar   = "get default calendar"
	opCreateCalendar    = "create calendar"
	opCreateEvent       = "create event"
)

// Settings of the application-owned calendar created when nothing writable exists.
const (
	AppCalendarTitle        = "Mappo"
	AppCalendarName         = "Experiencias Mappo"
	AppCalendarColor        = "#4285F4"
	AppCalendarOwnerAccount = "personal"
)

// Resolver finds a calendar the application may write events into.
type Resolver struct {
	provider CalendarProvider
	platform Platform
	logger   *slog.Logger
}

// NewResolver creates a Resolver for the given provider and platform family.
func NewResolver(logger *slog.Logger, provider CalendarProvider, platform Platform) *Resolver {
	return &Resolver{provider: provider, platform: platform, logger: logger}
}

// ResolveWritableCalendar returns a modifiable calendar, creating the Mappo
// calendar when the device has none. Calling it again after a creation finds
// the created calendar by enumeration.
func (r *Resolver) ResolveWritableCalendar(ctx context.Context) (models.CalendarHandle, error) {
	status, err := r.provider.RequestPermission(ctx)
	if err != nil {
		return models.CalendarHandle{}, providerError(opRequestPermission, err)
	}
	if status != PermissionGranted {
		r.logger.Warn("Calendar permission not granted.", "status", status)
		return models.CalendarHandle{}, ErrPermissionDenied
	}

	if r.platform == PlatformAndroid {
		if rp, ok := r.provider.(RemindersPermissionRequester); ok {
			// Some Android devices ask for reminders separately; the answer does not change the outcome.
			if status, err := rp.RequestRemindersPermission(ctx); err != nil {
				r.logger.Debug("Reminders permission request failed.", "error", err)
			} else {
				r.logger.Debug("Reminders permission answered.", "status", status)
			}
		}
	}

	calendars, err := r.provider.ListCalendars(ctx, models.EntityEvent)
	if err != nil {
		return models.CalendarHandle{}, providerError(opListCalendars, err)
	}
	for _, cal := range calendars {
		if cal.AllowsModifications {
			r.logger.Debug("Using existing editable calendar.", "calendarID", cal.ID)
			return cal, nil
		}
	}

	var defaultCalendar *models.CalendarHandle
	if r.platform == PlatformIOS {
		defaultCalendar, err = r.provider.DefaultCalendar(ctx)
		if err != nil {
			return models.CalendarHandle{}, providerError(opDefaultCalendar, err)
		}
		if defaultCalendar != nil && defaultCalendar.AllowsModifications {
			r.logger.Debug("Using default calendar.", "calendarID", defaultCalendar.ID)
			return *defaultCalendar, nil
		}
	}

	source := pickSource(defaultCalendar, calendars)
	if source == nil && r.platform == PlatformIOS {
		r.logger.Warn("No calendar source available to attach a new calendar.")
		return models.CalendarHandle{}, ErrNoEditableCalendar
	}

	cfg := models.CalendarConfig{
		Title:        AppCalendarTitle,
		Name:         AppCalendarName,
		Color:        AppCalendarColor,
		EntityType:   models.EntityEvent,
		AccessLevel:  models.AccessOwner,
		OwnerAccount: AppCalendarOwnerAccount,
	}
	switch r.platform {
	case PlatformIOS:
		cfg.SourceID = source.ID
	default:
		if source == nil {
			source = &models.Source{Name: AppCalendarTitle, IsLocalAccount: true}
		}
		cfg.Source = source
	}

	r.logger.Info("Creating application calendar.", "platform", r.platform, "source", source.Name)
	newID, err := r.provider.CreateCalendar(ctx, cfg)
	if err != nil {
		return models.CalendarHandle{}, providerError(opCreateCalendar, err)
	}

	calendars, err = r.provider.ListCalendars(ctx, models.EntityEvent)
	if err != nil {
		return models.CalendarHandle{}, providerError(opListCalendars, err)
	}
	for _, cal := range calendars {
		if cal.ID == newID {
			return cal, nil
		}
	}
	r.logger.Error("Created calendar missing from enumeration.", "calendarID", newID)
	return models.CalendarHandle{}, ErrCalendarCreationInconsistent
}

// pickSource prefers the default calendar's source, then the first enumerated calendar that has one.
func pickSource(defaultCalendar *models.CalendarHandle, calendars []models.CalendarHandle) *models.Source {
	if defaultCalendar != nil && defaultCalendar.Source != nil {
		return defaultCalendar.Source
	}
	for _, cal := range calendars {
		if cal.Source != nil {
			return cal.Source
		}
	}
	return nil
}
