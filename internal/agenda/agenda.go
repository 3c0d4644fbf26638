package agenda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mappo/internal/models"
	"mappo/internal/planner"
	"sort"
	"strings"
	"time"
)

const (
	lookBehind = 15 * 24 * time.Hour
	lookAhead  = 60 * 24 * time.Hour

	sampleTitle    = "Reunión de planificación"
	sampleNotes    = "Ejemplo creado desde la app Mappo."
	sampleLocation = "Oficina principal"
	updatedSuffix  = "\nActualizado desde la app."
)

var (
	ErrNoCalendar        = errors.New("no calendar found on the device")
	ErrEventNotFound     = errors.New("event not found")
	ErrSelectionRequired = errors.New("select an event and enter a new title")
)

// Manager lists and edits the events of one device calendar.
type Manager struct {
	provider planner.CalendarProvider
	platform planner.Platform
	logger   *slog.Logger

	calendarID string
}

// NewManager creates a Manager. Open must be called before any other method.
func NewManager(logger *slog.Logger, provider planner.CalendarProvider, platform planner.Platform) *Manager {
	return &Manager{provider: provider, platform: platform, logger: logger}
}

// Open asks for calendar access and selects the calendar to work on: the
// default calendar on iOS, else the primary calendar, else the first one.
func (m *Manager) Open(ctx context.Context) (models.CalendarHandle, error) {
	status, err := m.provider.RequestPermission(ctx)
	if err != nil {
		return models.CalendarHandle{}, fmt.Errorf("request permission: %w", err)
	}
	if status != planner.PermissionGranted {
		return models.CalendarHandle{}, planner.ErrPermissionDenied
	}

	if m.platform == planner.PlatformIOS {
		def, err := m.provider.DefaultCalendar(ctx)
		if err != nil {
			m.logger.Warn("Could not read default calendar.", "error", err)
		} else if def != nil {
			m.calendarID = def.ID
			return *def, nil
		}
	}

	calendars, err := m.provider.ListCalendars(ctx, models.EntityEvent)
	if err != nil {
		return models.CalendarHandle{}, fmt.Errorf("list calendars: %w", err)
	}
	if len(calendars) == 0 {
		return models.CalendarHandle{}, ErrNoCalendar
	}
	target := calendars[0]
	for _, cal := range calendars {
		if cal.IsPrimary {
			target = cal
			break
		}
	}
	m.calendarID = target.ID
	return target, nil
}

// CalendarID returns the calendar chosen by Open.
func (m *Manager) CalendarID() string {
	return m.calendarID
}

func (m *Manager) requireCalendar() error {
	if m.calendarID == "" {
		return ErrNoCalendar
	}
	return nil
}

// Events returns the events from 15 days before now to 60 days after, sorted by start.
func (m *Manager) Events(ctx context.Context, now time.Time) ([]models.Event, error) {
	if err := m.requireCalendar(); err != nil {
		return nil, err
	}
	events, err := m.provider.ListEvents(ctx, []string{m.calendarID}, now.Add(-lookBehind), now.Add(lookAhead))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartDate.Before(events[j].StartDate) })
	return events, nil
}

// CreateSample adds a one hour planning meeting starting two hours from now.
func (m *Manager) CreateSample(ctx context.Context, now time.Time) (string, error) {
	if err := m.requireCalendar(); err != nil {
		return "", err
	}
	start := now.Add(2 * time.Hour)
	id, err := m.provider.CreateEvent(ctx, m.calendarID, models.EventDraft{
		Title:     sampleTitle,
		Location:  sampleLocation,
		Notes:     sampleNotes,
		StartDate: start,
		EndDate:   start.Add(time.Hour),
	})
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	m.logger.Info("Sample event created.", "eventID", id)
	return id, nil
}

// Rename sets a new title on an event, marks its notes as updated and extends it by 30 minutes.
func (m *Manager) Rename(ctx context.Context, eventID, title string, now time.Time) error {
	title = strings.TrimSpace(title)
	if eventID == "" || title == "" {
		return ErrSelectionRequired
	}

	events, err := m.Events(ctx, now)
	if err != nil {
		return err
	}
	var event *models.Event
	for i := range events {
		if events[i].ID == eventID {
			event = &events[i]
			break
		}
	}
	if event == nil {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}

	notes := strings.TrimSpace(event.Notes + updatedSuffix)
	end := event.EndDate.Add(30 * time.Minute)
	if err := m.provider.UpdateEvent(ctx, eventID, models.EventPatch{Title: &title, Notes: &notes, EndDate: &end}); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event.
func (m *Manager) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: empty id", ErrEventNotFound)
	}
	if err := m.provider.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
