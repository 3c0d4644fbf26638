package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mappo/internal/models"
	"mappo/internal/planner"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const sourceType = "com.google"

// CalendarClient is a calendar provider backed by the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
	account string
	loc     *time.Location
}

// NewClient creates a new Google Calendar client for the account whose token
// file (token-<account>.json) was written by the auth command.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string, loc *time.Location) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(TokenFile(accountName))
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return NewClientWithService(logger, service, accountName, loc), nil
}

// NewClientWithService wraps an existing calendar service.
func NewClientWithService(logger *slog.Logger, service *calendar.Service, accountName string, loc *time.Location) *CalendarClient {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarClient{service: service, logger: logger, account: accountName, loc: loc}
}

// RequestPermission checks that the stored token still grants calendar access.
func (c *CalendarClient) RequestPermission(ctx context.Context) (planner.PermissionStatus, error) {
	_, err := c.service.CalendarList.List().MaxResults(1).Context(ctx).Do()
	if err == nil {
		return planner.PermissionGranted, nil
	}
	if isAuthError(err) {
		c.logger.Warn("Google rejected calendar access.", "account", c.account, "error", err)
		return planner.PermissionDenied, nil
	}
	return "", fmt.Errorf("failed to check calendar access: %w", err)
}

func isAuthError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden
	}
	// The token endpoint answers 400 invalid_grant or 401 for revoked or bad credentials.
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized
	}
	return false
}

// ListCalendars returns the account's calendar list. Google only has event calendars.
func (c *CalendarClient) ListCalendars(ctx context.Context, entityType models.EntityType) ([]models.CalendarHandle, error) {
	if entityType != models.EntityEvent {
		return nil, nil
	}

	var handles []models.CalendarHandle
	err := c.service.CalendarList.List().Context(ctx).Pages(ctx, func(list *calendar.CalendarList) error {
		for _, item := range list.Items {
			handles = append(handles, c.toHandle(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return handles, nil
}

// DefaultCalendar returns the account's primary calendar.
func (c *CalendarClient) DefaultCalendar(ctx context.Context) (*models.CalendarHandle, error) {
	entry, err := c.service.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get primary calendar: %w", err)
	}
	h := c.toHandle(entry)
	return &h, nil
}

func (c *CalendarClient) toHandle(item *calendar.CalendarListEntry) models.CalendarHandle {
	return models.CalendarHandle{
		ID:                  item.Id,
		Title:               item.Summary,
		AllowsModifications: item.AccessRole == "owner" || item.AccessRole == "writer",
		IsPrimary:           item.Primary,
		Source:              &models.Source{ID: c.account, Name: c.account, Type: sourceType},
	}
}

// CreateCalendar inserts a secondary calendar and paints it with cfg.Color.
// Google calendars always belong to the authenticated account, so the source is not used.
func (c *CalendarClient) CreateCalendar(ctx context.Context, cfg models.CalendarConfig) (string, error) {
	created, err := c.service.Calendars.Insert(&calendar.Calendar{
		Summary:     cfg.Title,
		Description: cfg.Name,
		TimeZone:    c.loc.String(),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar: %w", err)
	}

	if cfg.Color != "" {
		_, err := c.service.CalendarList.Patch(created.Id, &calendar.CalendarListEntry{
			BackgroundColor: cfg.Color,
			ForegroundColor: "#ffffff",
		}).ColorRgbFormat(true).Context(ctx).Do()
		if err != nil {
			c.logger.Warn("Could not set calendar color", "calendarID", created.Id, "error", err)
		}
	}

	c.logger.Info("Created Google calendar", "calendarID", created.Id, "title", cfg.Title)
	return created.Id, nil
}

// CreateEvent inserts the draft and returns an id of the form calendarID/eventID.
func (c *CalendarClient) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (string, error) {
	created, err := c.service.Events.Insert(calendarID, toGoogleEvent(draft)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	c.logger.Info("Created Google event", "calendarID", calendarID, "eventID", created.Id, "title", draft.Title)
	return joinEventID(calendarID, created.Id), nil
}

// UpdateEvent patches the fields set in patch.
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) error {
	calendarID, id, err := splitEventID(eventID)
	if err != nil {
		return err
	}
	if _, err := c.service.Events.Patch(calendarID, id, toGooglePatch(patch)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	calendarID, id, err := splitEventID(eventID)
	if err != nil {
		return err
	}
	if err := c.service.Events.Delete(calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListEvents fetches the timed events of the given calendars between start and end.
func (c *CalendarClient) ListEvents(ctx context.Context, calendarIDs []string, start, end time.Time) ([]models.Event, error) {
	var all []models.Event
	for _, calID := range calendarIDs {
		c.logger.Debug("Fetching events", "calendarID", calID, "start", start, "end", end)
		err := c.service.Events.List(calID).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			OrderBy("startTime").
			Context(ctx).
			Pages(ctx, func(events *calendar.Events) error {
				all = append(all, toInternalEvents(events.Items, calID)...)
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve events: %w", err)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartDate.Before(all[j].StartDate) })
	return all, nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
func toInternalEvents(googleEvents []*calendar.Event, calendarID string) []models.Event {
	var internalEvents []models.Event
	for _, item := range googleEvents {
		// All-day events carry a date but no time.
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}

		internalEvents = append(internalEvents, models.Event{
			ID:         joinEventID(calendarID, item.Id),
			CalendarID: calendarID,
			Title:      item.Summary,
			Location:   item.Location,
			Notes:      item.Description,
			StartDate:  startTime,
			EndDate:    endTime,
			Alarms:     fromReminders(item.Reminders),
		})
	}
	return internalEvents
}

func toGoogleEvent(draft models.EventDraft) *calendar.Event {
	ev := &calendar.Event{
		Summary:     draft.Title,
		Location:    draft.Location,
		Description: draft.Notes,
		Start:       &calendar.EventDateTime{DateTime: draft.StartDate.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: draft.EndDate.Format(time.RFC3339)},
	}
	if len(draft.Alarms) > 0 {
		ev.Reminders = &calendar.EventReminders{ForceSendFields: []string{"UseDefault"}}
		for _, a := range draft.Alarms {
			ev.Reminders.Overrides = append(ev.Reminders.Overrides, &calendar.EventReminder{
				Method:  reminderMethod(a.Method),
				Minutes: int64(-a.RelativeOffset),
			})
		}
	}
	return ev
}

func toGooglePatch(patch models.EventPatch) *calendar.Event {
	ev := &calendar.Event{}
	if patch.Title != nil {
		ev.Summary = *patch.Title
		ev.ForceSendFields = append(ev.ForceSendFields, "Summary")
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
		ev.ForceSendFields = append(ev.ForceSendFields, "Location")
	}
	if patch.Notes != nil {
		ev.Description = *patch.Notes
		ev.ForceSendFields = append(ev.ForceSendFields, "Description")
	}
	if patch.StartDate != nil {
		ev.Start = &calendar.EventDateTime{DateTime: patch.StartDate.Format(time.RFC3339)}
	}
	if patch.EndDate != nil {
		ev.End = &calendar.EventDateTime{DateTime: patch.EndDate.Format(time.RFC3339)}
	}
	return ev
}

func reminderMethod(m models.AlarmMethod) string {
	if m == models.AlarmEmail {
		return "email"
	}
	return "popup"
}

func fromReminders(r *calendar.EventReminders) []models.Alarm {
	if r == nil {
		return nil
	}
	var alarms []models.Alarm
	for _, o := range r.Overrides {
		method := models.AlarmAlert
		if o.Method == "email" {
			method = models.AlarmEmail
		}
		alarms = append(alarms, models.Alarm{RelativeOffset: -int(o.Minutes), Method: method})
	}
	return alarms
}

// Event ids are base32hex and never contain a slash, so the last slash separates the calendar id.
func joinEventID(calendarID, eventID string) string {
	return calendarID + "/" + eventID
}

func splitEventID(id string) (calendarID, eventID string, err error) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("malformed google event id %q", id)
	}
	return id[:i], id[i+1:], nil
}
