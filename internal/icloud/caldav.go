package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"mappo/internal/models"
	"mappo/internal/planner"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const (
	ICloudCalDAVEndpoint = "https://caldav.icloud.com/"
	sourceType           = "CalDAV"
)

// customTransport handles adding Basic Auth and custom headers to requests.
// It remembers whether the server rejected the credentials.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper

	rejected atomic.Bool
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "mappo/1.0")
	resp, err := t.Transport.RoundTrip(req)
	if err == nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		t.rejected.Store(true)
	}
	return resp, err
}

// CalDAVClient is a calendar provider backed by a CalDAV server (iCloud).
type CalDAVClient struct {
	caldavClient *caldav.Client
	httpClient   *http.Client
	transport    *customTransport
	logger       *slog.Logger
	endpoint     *url.URL
	username     string
	calendarName string
	loc          *time.Location

	mu      sync.Mutex
	homeSet string
}

// NewClient creates a CalDAVClient. calendarName names the calendar reported as
// the default one; it may be empty.
func NewClient(logger *slog.Logger, endpoint, username, password, calendarName string, loc *time.Location) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = ICloudCalDAVEndpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav endpoint: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &CalDAVClient{
		caldavClient: caldavClient,
		httpClient:   httpClient,
		transport:    transport,
		logger:       logger,
		endpoint:     base,
		username:     username,
		calendarName: calendarName,
		loc:          loc,
	}, nil
}

// RequestPermission asks the server for the current user principal on every
// call, then discovers the calendar home set once. Rejected credentials mean denied.
func (c *CalDAVClient) RequestPermission(ctx context.Context) (planner.PermissionStatus, error) {
	c.transport.rejected.Store(false)
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		err = fmt.Errorf("failed to find principal path: %w", err)
	} else {
		_, err = c.discoverHomeSet(ctx, principalPath)
	}
	if err != nil {
		if c.transport.rejected.Load() {
			c.logger.Warn("CalDAV server rejected the credentials", "username", c.username)
			return planner.PermissionDenied, nil
		}
		return "", err
	}
	return planner.PermissionGranted, nil
}

func (c *CalDAVClient) calendarHomeSet(ctx context.Context) (string, error) {
	c.mu.Lock()
	homeSet := c.homeSet
	c.mu.Unlock()
	if homeSet != "" {
		return homeSet, nil
	}

	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}
	return c.discoverHomeSet(ctx, principalPath)
}

// discoverHomeSet resolves and caches the calendar home set of principalPath.
func (c *CalDAVClient) discoverHomeSet(ctx context.Context, principalPath string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.homeSet != "" {
		return c.homeSet, nil
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	c.homeSet = homeSetPath
	return homeSetPath, nil
}

// ListCalendars returns the calendars of the home set that hold the given entity type.
func (c *CalDAVClient) ListCalendars(ctx context.Context, entityType models.EntityType) ([]models.CalendarHandle, error) {
	calendars, err := c.findCalendars(ctx)
	if err != nil {
		return nil, err
	}
	var handles []models.CalendarHandle
	for _, cal := range calendars {
		if supportsEntity(cal, entityType) {
			handles = append(handles, c.toHandle(cal))
		}
	}
	return handles, nil
}

func (c *CalDAVClient) findCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	homeSet, err := c.calendarHomeSet(ctx)
	if err != nil {
		return nil, err
	}
	calendars, err := c.caldavClient.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}
	return calendars, nil
}

// DefaultCalendar returns the calendar named by ICLOUD_CALENDAR_NAME, if any.
func (c *CalDAVClient) DefaultCalendar(ctx context.Context) (*models.CalendarHandle, error) {
	if c.calendarName == "" {
		return nil, nil
	}
	calendars, err := c.findCalendars(ctx)
	if err != nil {
		return nil, err
	}
	for _, cal := range calendars {
		if cal.Name == c.calendarName {
			h := c.toHandle(cal)
			h.IsPrimary = true
			return &h, nil
		}
	}
	c.logger.Debug("Configured calendar not found", "calendarName", c.calendarName)
	return nil, nil
}

// supportsEntity reports whether cal accepts the entity type. Servers that omit
// the supported component set accept everything.
func supportsEntity(cal caldav.Calendar, entityType models.EntityType) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	want := ical.CompEvent
	if entityType == models.EntityReminder {
		want = ical.CompToDo
	}
	for _, comp := range cal.SupportedComponentSet {
		if strings.EqualFold(comp, want) {
			return true
		}
	}
	return false
}

func (c *CalDAVClient) toHandle(cal caldav.Calendar) models.CalendarHandle {
	var source *models.Source
	c.mu.Lock()
	if c.homeSet != "" {
		source = &models.Source{ID: c.homeSet, Name: c.username, Type: sourceType}
	}
	c.mu.Unlock()

	// Calendars under the home set belong to the user; subscriptions live elsewhere.
	return models.CalendarHandle{
		ID:                  cal.Path,
		Title:               cal.Name,
		AllowsModifications: supportsEntity(cal, models.EntityEvent),
		Source:              source,
	}
}

// CreateCalendar issues MKCALENDAR under the source collection (the home set by default).
func (c *CalDAVClient) CreateCalendar(ctx context.Context, cfg models.CalendarConfig) (string, error) {
	parent := cfg.SourceID
	if parent == "" && cfg.Source != nil && !cfg.Source.IsLocalAccount {
		parent = cfg.Source.ID
	}
	if parent == "" {
		homeSet, err := c.calendarHomeSet(ctx)
		if err != nil {
			return "", err
		}
		parent = homeSet
	}

	calPath := path.Join(parent, uuid.NewString()) + "/"
	if err := c.mkCalendar(ctx, calPath, cfg); err != nil {
		return "", err
	}
	c.logger.Info("Created CalDAV calendar", "path", calPath, "title", cfg.Title)
	return calPath, nil
}

// CreateEvent writes the draft as a new calendar object and returns its path.
func (c *CalDAVClient) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (string, error) {
	uid := GenerateUID()
	eventPath := path.Join(calendarID, uid+".ics")

	cal := newCalendar(toICal(uid, draft, time.Now().UTC()))
	if _, err := c.caldavClient.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	c.logger.Info("Successfully created event in iCloud", "eventTitle", draft.Title, "path", eventPath)
	return eventPath, nil
}

// UpdateEvent rewrites the fields set in patch on the stored event.
func (c *CalDAVClient) UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) error {
	obj, err := c.caldavClient.GetCalendarObject(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	events := obj.Data.Events()
	if len(events) == 0 {
		return fmt.Errorf("calendar object %s has no event", eventID)
	}
	applyPatch(events[0].Component, patch, time.Now().UTC())

	if _, err := c.caldavClient.PutCalendarObject(ctx, eventID, obj.Data); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes the calendar object.
func (c *CalDAVClient) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.caldavClient.RemoveAll(ctx, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListEvents runs a calendar-query time range search on each calendar.
func (c *CalDAVClient) ListEvents(ctx context.Context, calendarIDs []string, start, end time.Time) ([]models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
				AllComps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}

	var all []models.Event
	for _, calID := range calendarIDs {
		objects, err := c.caldavClient.QueryCalendar(ctx, calID, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query calendar %s: %w", calID, err)
		}
		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			for _, ev := range obj.Data.Events() {
				e, err := fromICal(ev, obj.Path, calID, c.loc)
				if err != nil {
					c.logger.Warn("Skipping unreadable event", "path", obj.Path, "error", err)
					continue
				}
				all = append(all, e)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartDate.Before(all[j].StartDate) })
	return all, nil
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
