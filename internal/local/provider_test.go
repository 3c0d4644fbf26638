package local

import (
	"context"
	"io"
	"log/slog"
	"mappo/internal/database"
	"mappo/internal/models"
	"mappo/internal/planner"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProvider(t *testing.T) *Provider {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProvider(slog.New(slog.NewTextHandler(io.Discard, nil)), db)
}

func TestPermissionDefaultsToGranted(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()

	status, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, planner.PermissionGranted, status)

	require.NoError(t, p.SetPermission(ctx, planner.PermissionDenied))
	status, err = p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, planner.PermissionDenied, status)

	status, err = p.RequestRemindersPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, planner.PermissionGranted, status)
}

func TestSeedAndList(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	src := &models.Source{ID: "icloud", Name: "iCloud", Type: "CalDAV"}

	require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "birthdays", Title: "Cumpleaños", Source: src}))
	require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "home", Title: "Casa", AllowsModifications: true, IsPrimary: true, Source: src}))

	cals, err := p.ListCalendars(ctx, models.EntityEvent)
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.Equal(t, "birthdays", cals[0].ID)
	assert.False(t, cals[0].AllowsModifications)
	require.NotNil(t, cals[0].Source)
	assert.Equal(t, "iCloud", cals[0].Source.Name)

	def, err := p.DefaultCalendar(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "home", def.ID)

	reminders, err := p.ListCalendars(ctx, models.EntityReminder)
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestSeedDemoCalendarsTwice(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		for _, cal := range DemoCalendars(false) {
			require.NoError(t, p.Seed(ctx, cal))
		}
	}

	cals, err := p.ListCalendars(ctx, models.EntityEvent)
	require.NoError(t, err)
	require.Len(t, cals, 2)

	def, err := p.DefaultCalendar(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "demo-personal", def.ID)

	assert.Len(t, DemoCalendars(true), 1)
	assert.False(t, DemoCalendars(true)[0].AllowsModifications)
}

func TestDefaultCalendarNone(t *testing.T) {
	p := setupProvider(t)
	def, err := p.DefaultCalendar(context.Background())
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestCreateCalendarSources(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()

	_, err := p.CreateCalendar(ctx, models.CalendarConfig{Title: "Mappo", AccessLevel: models.AccessOwner, EntityType: models.EntityEvent})
	require.ErrorIs(t, err, ErrSourceRequired)

	_, err = p.CreateCalendar(ctx, models.CalendarConfig{Title: "Mappo", SourceID: "missing", EntityType: models.EntityEvent})
	require.ErrorIs(t, err, ErrSourceRequired)

	id, err := p.CreateCalendar(ctx, models.CalendarConfig{
		Title:       "Mappo",
		AccessLevel: models.AccessOwner,
		EntityType:  models.EntityEvent,
		Source:      &models.Source{Name: "Mappo", IsLocalAccount: true},
	})
	require.NoError(t, err)

	cals, err := p.ListCalendars(ctx, models.EntityEvent)
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, id, cals[0].ID)
	assert.True(t, cals[0].AllowsModifications)
	require.NotNil(t, cals[0].Source)
	assert.True(t, cals[0].Source.IsLocalAccount)
}

func TestEventLifecycle(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "home", Title: "Casa", AllowsModifications: true}))

	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	id, err := p.CreateEvent(ctx, "home", models.EventDraft{
		Title:     "Ruta histórica",
		Location:  "Plaza Mayor",
		Notes:     "Notas",
		StartDate: start,
		EndDate:   start.Add(3 * time.Hour),
		Alarms:    []models.Alarm{{RelativeOffset: -60, Method: models.AlarmAlert}},
	})
	require.NoError(t, err)

	events, err := p.ListEvents(ctx, []string{"home"}, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Ruta histórica", events[0].Title)
	assert.True(t, events[0].EndDate.Equal(start.Add(3*time.Hour)))
	assert.Equal(t, []models.Alarm{{RelativeOffset: -60, Method: models.AlarmAlert}}, events[0].Alarms)

	title := "Ruta histórica nocturna"
	later := start.Add(4 * time.Hour)
	require.NoError(t, p.UpdateEvent(ctx, id, models.EventPatch{Title: &title, EndDate: &later}))
	got, err := p.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, "Plaza Mayor", got.Location)
	assert.True(t, got.EndDate.Equal(later))

	before := start.Add(-time.Minute)
	assert.ErrorIs(t, p.UpdateEvent(ctx, id, models.EventPatch{EndDate: &before}), ErrInvalidEventTime)

	require.NoError(t, p.DeleteEvent(ctx, id))
	assert.ErrorIs(t, p.DeleteEvent(ctx, id), ErrEventNotFound)

	events, err = p.ListEvents(ctx, []string{"home"}, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCreateEventRejectsReadOnly(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "holidays", Title: "Festivos"}))

	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	_, err := p.CreateEvent(ctx, "holidays", models.EventDraft{Title: "x", StartDate: start, EndDate: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrReadOnlyCalendar)

	_, err = p.CreateEvent(ctx, "nowhere", models.EventDraft{Title: "x", StartDate: start, EndDate: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrCalendarNotFound)
}

func TestResolverAgainstDevice(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("android creates local calendar once", func(t *testing.T) {
		p := setupProvider(t)
		r := planner.NewResolver(logger, p, planner.PlatformAndroid)

		first, err := r.ResolveWritableCalendar(ctx)
		require.NoError(t, err)
		assert.Equal(t, planner.AppCalendarTitle, first.Title)

		second, err := r.ResolveWritableCalendar(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		cals, err := p.ListCalendars(ctx, models.EntityEvent)
		require.NoError(t, err)
		assert.Len(t, cals, 1)
	})

	t.Run("ios without source", func(t *testing.T) {
		p := setupProvider(t)
		require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "holidays", Title: "Festivos"}))

		_, err := planner.NewResolver(logger, p, planner.PlatformIOS).ResolveWritableCalendar(ctx)
		require.ErrorIs(t, err, planner.ErrNoEditableCalendar)

		cals, err := p.ListCalendars(ctx, models.EntityEvent)
		require.NoError(t, err)
		assert.Len(t, cals, 1)
	})

	t.Run("ios attaches to default source", func(t *testing.T) {
		p := setupProvider(t)
		src := &models.Source{ID: "icloud", Name: "iCloud"}
		require.NoError(t, p.Seed(ctx, models.CalendarHandle{ID: "shared", Title: "Compartido", IsPrimary: true, Source: src}))

		cal, err := planner.NewResolver(logger, p, planner.PlatformIOS).ResolveWritableCalendar(ctx)
		require.NoError(t, err)
		require.NotNil(t, cal.Source)
		assert.Equal(t, "icloud", cal.Source.ID)
	})
}
