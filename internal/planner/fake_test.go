package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mappo/internal/models"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is an in-memory CalendarProvider recording mutating calls.
type fakeProvider struct {
	status          PermissionStatus
	permissionErr   error
	calendars       []models.CalendarHandle
	defaultCalendar *models.CalendarHandle
	listErr         error
	createEventErr  error
	// hideCreated keeps newly created calendars out of ListCalendars.
	hideCreated bool

	created        []models.CalendarConfig
	events         map[string]models.Event
	remindersAsked int
	nextID         int

	// createEventHook runs at the start of CreateEvent.
	createEventHook func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{status: PermissionGranted, events: map[string]models.Event{}}
}

func (p *fakeProvider) RequestPermission(context.Context) (PermissionStatus, error) {
	return p.status, p.permissionErr
}

func (p *fakeProvider) RequestRemindersPermission(context.Context) (PermissionStatus, error) {
	p.remindersAsked++
	return PermissionDenied, nil
}

func (p *fakeProvider) ListCalendars(context.Context, models.EntityType) ([]models.CalendarHandle, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]models.CalendarHandle(nil), p.calendars...), nil
}

func (p *fakeProvider) DefaultCalendar(context.Context) (*models.CalendarHandle, error) {
	return p.defaultCalendar, nil
}

func (p *fakeProvider) CreateCalendar(_ context.Context, cfg models.CalendarConfig) (string, error) {
	p.nextID++
	id := fmt.Sprintf("created-%d", p.nextID)
	p.created = append(p.created, cfg)
	if !p.hideCreated {
		p.calendars = append(p.calendars, models.CalendarHandle{
			ID:                  id,
			Title:               cfg.Title,
			AllowsModifications: true,
			Source:              cfg.Source,
		})
	}
	return id, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, calendarID string, d models.EventDraft) (string, error) {
	if p.createEventHook != nil {
		p.createEventHook()
	}
	if p.createEventErr != nil {
		return "", p.createEventErr
	}
	p.nextID++
	id := fmt.Sprintf("event-%d", p.nextID)
	p.events[id] = models.Event{
		ID: id, CalendarID: calendarID, Title: d.Title, Location: d.Location, Notes: d.Notes,
		StartDate: d.StartDate, EndDate: d.EndDate, Alarms: d.Alarms,
	}
	return id, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, id string, patch models.EventPatch) error {
	e, ok := p.events[id]
	if !ok {
		return errors.New("no such event")
	}
	patch.Apply(&e)
	p.events[id] = e
	return nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, id string) error {
	delete(p.events, id)
	return nil
}

func (p *fakeProvider) ListEvents(_ context.Context, ids []string, start, end time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, e := range p.events {
		for _, id := range ids {
			if e.CalendarID == id && e.StartDate.Before(end) && e.EndDate.After(start) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
