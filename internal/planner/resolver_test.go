package planner

import (
	"context"
	"errors"
	"mappo/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePermissionDeniedThenGranted(t *testing.T) {
	p := newFakeProvider()
	p.status = PermissionDenied
	p.calendars = []models.CalendarHandle{{ID: "work", AllowsModifications: true}}
	r := NewResolver(testLogger(), p, PlatformAndroid)

	_, err := r.ResolveWritableCalendar(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)

	p.status = PermissionGranted
	cal, err := r.ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "work", cal.ID)
}

func TestResolveReturnsFirstEditable(t *testing.T) {
	p := newFakeProvider()
	p.calendars = []models.CalendarHandle{
		{ID: "holidays"},
		{ID: "family", AllowsModifications: true},
		{ID: "work", AllowsModifications: true},
	}
	r := NewResolver(testLogger(), p, PlatformIOS)

	cal, err := r.ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "family", cal.ID)
	assert.Empty(t, p.created)
}

func TestResolveUsesModifiableDefaultOnIOS(t *testing.T) {
	p := newFakeProvider()
	p.calendars = []models.CalendarHandle{{ID: "subscribed"}}
	p.defaultCalendar = &models.CalendarHandle{ID: "default", AllowsModifications: true}

	cal, err := NewResolver(testLogger(), p, PlatformIOS).ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", cal.ID)
	assert.Empty(t, p.created)
}

func TestResolveIgnoresDefaultOnAndroid(t *testing.T) {
	p := newFakeProvider()
	p.defaultCalendar = &models.CalendarHandle{ID: "default", AllowsModifications: true}

	cal, err := NewResolver(testLogger(), p, PlatformAndroid).ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "created-1", cal.ID)
	require.Len(t, p.created, 1)
	assert.Equal(t, 1, p.remindersAsked)
}

func TestResolveNoSourceOnIOS(t *testing.T) {
	p := newFakeProvider()
	p.calendars = []models.CalendarHandle{{ID: "readonly"}}

	_, err := NewResolver(testLogger(), p, PlatformIOS).ResolveWritableCalendar(context.Background())
	require.ErrorIs(t, err, ErrNoEditableCalendar)
	assert.Empty(t, p.created)
}

func TestResolveCreatesWithDefaultSourceOnIOS(t *testing.T) {
	p := newFakeProvider()
	icloud := &models.Source{ID: "src-icloud", Name: "iCloud"}
	p.calendars = []models.CalendarHandle{{ID: "birthdays", Source: &models.Source{ID: "src-other"}}}
	p.defaultCalendar = &models.CalendarHandle{ID: "default", Source: icloud}

	cal, err := NewResolver(testLogger(), p, PlatformIOS).ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "created-1", cal.ID)

	require.Len(t, p.created, 1)
	cfg := p.created[0]
	assert.Equal(t, "src-icloud", cfg.SourceID)
	assert.Nil(t, cfg.Source)
	assert.Equal(t, AppCalendarTitle, cfg.Title)
	assert.Equal(t, AppCalendarName, cfg.Name)
	assert.Equal(t, AppCalendarColor, cfg.Color)
	assert.Equal(t, models.EntityEvent, cfg.EntityType)
	assert.Equal(t, models.AccessOwner, cfg.AccessLevel)
}

func TestResolveAndroidSourceFallbacks(t *testing.T) {
	t.Run("enumerated source", func(t *testing.T) {
		p := newFakeProvider()
		google := &models.Source{ID: "acc", Name: "me@example.com", Type: "com.google"}
		p.calendars = []models.CalendarHandle{{ID: "ro"}, {ID: "ro2", Source: google}}

		_, err := NewResolver(testLogger(), p, PlatformAndroid).ResolveWritableCalendar(context.Background())
		require.NoError(t, err)
		require.Len(t, p.created, 1)
		assert.Equal(t, google, p.created[0].Source)
		assert.Empty(t, p.created[0].SourceID)
	})

	t.Run("synthesized local account", func(t *testing.T) {
		p := newFakeProvider()

		_, err := NewResolver(testLogger(), p, PlatformAndroid).ResolveWritableCalendar(context.Background())
		require.NoError(t, err)
		require.Len(t, p.created, 1)
		src := p.created[0].Source
		require.NotNil(t, src)
		assert.True(t, src.IsLocalAccount)
		assert.Equal(t, "Mappo", src.Name)
	})
}

func TestResolveIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	r := NewResolver(testLogger(), p, PlatformAndroid)

	first, err := r.ResolveWritableCalendar(context.Background())
	require.NoError(t, err)
	second, err := r.ResolveWritableCalendar(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, p.created, 1)
}

func TestResolveCreationInconsistent(t *testing.T) {
	p := newFakeProvider()
	p.hideCreated = true

	_, err := NewResolver(testLogger(), p, PlatformAndroid).ResolveWritableCalendar(context.Background())
	require.ErrorIs(t, err, ErrCalendarCreationInconsistent)
}

func TestResolveWrapsProviderErrors(t *testing.T) {
	boom := errors.New("boom")
	p := newFakeProvider()
	p.listErr = boom

	_, err := NewResolver(testLogger(), p, PlatformAndroid).ResolveWritableCalendar(context.Background())
	require.ErrorIs(t, err, ErrProvider)
	require.ErrorIs(t, err, boom)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, opListCalendars, pe.Op)

	title, _ := UserMessage(err)
	assert.Equal(t, "Error de calendario", title)
}
