package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mappo/internal/models"
	"mappo/internal/planner"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	service, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewClientWithService(slog.New(slog.NewTextHandler(io.Discard, nil)), service, "me@example.com", time.UTC)
}

func TestListCalendarsMapsAccessRoles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "holidays", "summary": "Festivos", "accessRole": "reader"},
				{"id": "me@example.com", "summary": "Personal", "accessRole": "owner", "primary": true},
				{"id": "team", "summary": "Equipo", "accessRole": "writer"},
			},
		})
	})
	c := newTestClient(t, mux)

	cals, err := c.ListCalendars(context.Background(), models.EntityEvent)
	require.NoError(t, err)
	require.Len(t, cals, 3)
	assert.False(t, cals[0].AllowsModifications)
	assert.True(t, cals[1].AllowsModifications)
	assert.True(t, cals[1].IsPrimary)
	assert.True(t, cals[2].AllowsModifications)
	require.NotNil(t, cals[0].Source)
	assert.Equal(t, "me@example.com", cals[0].Source.ID)

	status, err := c.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.PermissionGranted, status)

	reminders, err := c.ListCalendars(context.Background(), models.EntityReminder)
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestRequestPermissionDenied(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	}))

	status, err := c.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.PermissionDenied, status)
}

func TestIsAuthError(t *testing.T) {
	tokenErr := func(code int) error {
		return &url.Error{Op: "Get", URL: "https://www.googleapis.com/calendar/v3/users/me/calendarList", Err: &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: code},
		}}
	}

	assert.True(t, isAuthError(tokenErr(http.StatusBadRequest)))
	assert.True(t, isAuthError(tokenErr(http.StatusUnauthorized)))
	assert.False(t, isAuthError(tokenErr(http.StatusServiceUnavailable)))
	assert.False(t, isAuthError(tokenErr(http.StatusInternalServerError)))
	assert.False(t, isAuthError(&oauth2.RetrieveError{}))
	assert.False(t, isAuthError(io.ErrUnexpectedEOF))
}

func TestRequestPermissionServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"code":503,"message":"Backend Error"}}`)
	}))

	_, err := c.RequestPermission(context.Background())
	assert.Error(t, err)
}

func TestCreateEventSendsReminder(t *testing.T) {
	var got calendar.Event
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/team/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"id": "abc123"})
	})
	c := newTestClient(t, mux)

	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	draft := planner.Materialize(models.ExperiencePackage{
		Title: "Ruta histórica", MeetingPoint: "Plaza Mayor", DurationHours: 3, Recommendations: []string{"A"},
	}, models.ScheduleOption{StartDate: start})

	id, err := c.CreateEvent(context.Background(), "team", draft)
	require.NoError(t, err)
	assert.Equal(t, "team/abc123", id)

	assert.Equal(t, "Ruta histórica", got.Summary)
	assert.Equal(t, "Plaza Mayor", got.Location)
	assert.Equal(t, "2024-06-10T10:00:00Z", got.Start.DateTime)
	assert.Equal(t, "2024-06-10T13:00:00Z", got.End.DateTime)
	require.NotNil(t, got.Reminders)
	assert.False(t, got.Reminders.UseDefault)
	require.Len(t, got.Reminders.Overrides, 1)
	assert.Equal(t, "popup", got.Reminders.Overrides[0].Method)
	assert.EqualValues(t, 60, got.Reminders.Overrides[0].Minutes)
}

func TestToInternalEventsSkipsAllDay(t *testing.T) {
	events := toInternalEvents([]*calendar.Event{
		{Id: "allday", Start: &calendar.EventDateTime{Date: "2024-06-10"}, End: &calendar.EventDateTime{Date: "2024-06-11"}},
		{
			Id:        "timed",
			Summary:   "Tour",
			Start:     &calendar.EventDateTime{DateTime: "2024-06-10T10:00:00+02:00"},
			End:       &calendar.EventDateTime{DateTime: "2024-06-10T12:00:00+02:00"},
			Reminders: &calendar.EventReminders{Overrides: []*calendar.EventReminder{{Method: "email", Minutes: 30}}},
		},
	}, "team")

	require.Len(t, events, 1)
	assert.Equal(t, "team/timed", events[0].ID)
	assert.Equal(t, 2*time.Hour, events[0].EndDate.Sub(events[0].StartDate))
	assert.Equal(t, []models.Alarm{{RelativeOffset: -30, Method: models.AlarmEmail}}, events[0].Alarms)
}

func TestEventIDRoundTrip(t *testing.T) {
	cal, ev, err := splitEventID(joinEventID("abc@group.calendar.google.com", "e1"))
	require.NoError(t, err)
	assert.Equal(t, "abc@group.calendar.google.com", cal)
	assert.Equal(t, "e1", ev)

	for _, bad := range []string{"", "nocal", "/e1", "cal/"} {
		_, _, err := splitEventID(bad)
		assert.Error(t, err, bad)
	}
}

func TestToGooglePatchForcesSetFields(t *testing.T) {
	title := ""
	end := time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)
	ev := toGooglePatch(models.EventPatch{Title: &title, EndDate: &end})
	assert.Contains(t, ev.ForceSendFields, "Summary")
	assert.Nil(t, ev.Start)
	assert.Equal(t, "2024-06-10T12:30:00Z", ev.End.DateTime)
}
