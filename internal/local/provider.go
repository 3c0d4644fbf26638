package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mappo/internal/models"
	"mappo/internal/planner"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyCalendarPermission  = "calendar_permission"
	keyRemindersPermission = "reminders_permission"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrReadOnlyCalendar = errors.New("calendar does not allow modifications")
	ErrSourceRequired   = errors.New("calendar source required")
	ErrInvalidEventTime = errors.New("event must end after it starts")
)

// Provider is a device calendar kept in SQLite.
type Provider struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProvider creates a Provider on an opened database (see database.Open).
func NewProvider(logger *slog.Logger, db *sql.DB) *Provider {
	return &Provider{db: db, logger: logger}
}

// RequestPermission returns the stored calendar permission. A device that was
// never asked answers granted, as if the user accepted the prompt.
func (p *Provider) RequestPermission(ctx context.Context) (planner.PermissionStatus, error) {
	return p.permission(ctx, keyCalendarPermission)
}

// RequestRemindersPermission returns the stored reminders permission.
func (p *Provider) RequestRemindersPermission(ctx context.Context) (planner.PermissionStatus, error) {
	return p.permission(ctx, keyRemindersPermission)
}

// SetPermission changes the calendar permission, like the OS settings screen does.
func (p *Provider) SetPermission(ctx context.Context, status planner.PermissionStatus) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		keyCalendarPermission, string(status),
	)
	if err != nil {
		return fmt.Errorf("store permission: %w", err)
	}
	p.logger.Info("Calendar permission changed.", "status", status)
	return nil
}

func (p *Provider) permission(ctx context.Context, key string) (planner.PermissionStatus, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		if _, err := p.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, key, string(planner.PermissionGranted)); err != nil {
			return "", fmt.Errorf("store permission: %w", err)
		}
		return planner.PermissionGranted, nil
	}
	if err != nil {
		return "", fmt.Errorf("query permission: %w", err)
	}
	return planner.PermissionStatus(value), nil
}

const calendarColumns = `c.id, c.title, c.allows_modifications, c.is_primary, s.id, s.name, s.type, s.is_local_account`

// ListCalendars returns the calendars of the given entity type in creation order.
func (p *Provider) ListCalendars(ctx context.Context, entityType models.EntityType) ([]models.CalendarHandle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+calendarColumns+`
		 FROM calendars c LEFT JOIN sources s ON s.id = c.source_id
		 WHERE c.entity_type = ?
		 ORDER BY c.rowid`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("query calendars: %w", err)
	}
	defer rows.Close()

	var calendars []models.CalendarHandle
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, cal)
	}
	return calendars, rows.Err()
}

// DefaultCalendar returns the primary event calendar, or nil when none is marked primary.
func (p *Provider) DefaultCalendar(ctx context.Context) (*models.CalendarHandle, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+calendarColumns+`
		 FROM calendars c LEFT JOIN sources s ON s.id = c.source_id
		 WHERE c.entity_type = ? AND c.is_primary = 1
		 ORDER BY c.rowid LIMIT 1`,
		string(models.EntityEvent),
	)
	cal, err := scanCalendar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row scanner) (models.CalendarHandle, error) {
	var (
		cal                 models.CalendarHandle
		modifiable, primary int
		srcID, srcName      sql.NullString
		srcType             sql.NullString
		srcLocal            sql.NullInt64
	)
	if err := row.Scan(&cal.ID, &cal.Title, &modifiable, &primary, &srcID, &srcName, &srcType, &srcLocal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cal, err
		}
		return cal, fmt.Errorf("scan calendar: %w", err)
	}
	cal.AllowsModifications = modifiable != 0
	cal.IsPrimary = primary != 0
	if srcID.Valid {
		cal.Source = &models.Source{
			ID:             srcID.String,
			Name:           srcName.String,
			Type:           srcType.String,
			IsLocalAccount: srcLocal.Int64 != 0,
		}
	}
	return cal, nil
}

// CreateCalendar stores a new calendar. The calendar must reference an existing
// source by id, or carry a source; a local account source is created on demand.
func (p *Provider) CreateCalendar(ctx context.Context, cfg models.CalendarConfig) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sourceID, err := resolveSource(ctx, tx, cfg)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	writable := cfg.AccessLevel == models.AccessOwner || cfg.AccessLevel == models.AccessEditor
	_, err = tx.ExecContext(ctx,
		`INSERT INTO calendars (id, title, name, color, entity_type, access_level, owner_account, allows_modifications, source_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.Title, cfg.Name, cfg.Color, string(cfg.EntityType), string(cfg.AccessLevel), cfg.OwnerAccount, boolInt(writable), sourceID,
	)
	if err != nil {
		return "", fmt.Errorf("insert calendar: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit calendar: %w", err)
	}

	p.logger.Info("Created device calendar.", "calendarID", id, "title", cfg.Title, "sourceID", sourceID)
	return id, nil
}

func resolveSource(ctx context.Context, tx *sql.Tx, cfg models.CalendarConfig) (string, error) {
	id := cfg.SourceID
	if id == "" && cfg.Source != nil {
		id = cfg.Source.ID
	}
	if id != "" {
		var found string
		err := tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE id = ?`, id).Scan(&found)
		if err == nil {
			return found, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("query source: %w", err)
		}
		if cfg.Source == nil || !cfg.Source.IsLocalAccount {
			return "", fmt.Errorf("%w: unknown source %q", ErrSourceRequired, id)
		}
	}
	if cfg.Source == nil || !cfg.Source.IsLocalAccount {
		return "", ErrSourceRequired
	}

	if id == "" {
		id = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sources (id, name, type, is_local_account) VALUES (?, ?, ?, 1)`,
		id, cfg.Source.Name, "LOCAL",
	)
	if err != nil {
		return "", fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

// DemoCalendars is the device content installed by the seed command. Ids are
// fixed so seeding twice leaves the device unchanged.
func DemoCalendars(readOnly bool) []models.CalendarHandle {
	account := &models.Source{ID: "demo-account", Name: "demo@mappo.app", Type: "com.google"}
	calendars := []models.CalendarHandle{
		{ID: "demo-holidays", Title: "Festivos en España", Source: account},
	}
	if !readOnly {
		calendars = append(calendars, models.CalendarHandle{
			ID: "demo-personal", Title: "Personal", AllowsModifications: true, IsPrimary: true, Source: account,
		})
	}
	return calendars
}

// Seed adds an existing calendar to the device, with its source when given.
// A calendar whose id is already present is left as is.
func (p *Provider) Seed(ctx context.Context, cal models.CalendarHandle) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var sourceID sql.NullString
	if cal.Source != nil {
		sourceID = sql.NullString{String: cal.Source.ID, Valid: true}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, name, type, is_local_account) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			cal.Source.ID, cal.Source.Name, cal.Source.Type, boolInt(cal.Source.IsLocalAccount),
		)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO calendars (id, title, allows_modifications, is_primary, source_id) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		cal.ID, cal.Title, boolInt(cal.AllowsModifications), boolInt(cal.IsPrimary), sourceID,
	)
	if err != nil {
		return fmt.Errorf("insert calendar: %w", err)
	}
	return tx.Commit()
}

// CreateEvent stores an event and its alarms in a modifiable calendar.
func (p *Provider) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (string, error) {
	if !draft.EndDate.After(draft.StartDate) {
		return "", ErrInvalidEventTime
	}

	var modifiable int
	err := p.db.QueryRowContext(ctx, `SELECT allows_modifications FROM calendars WHERE id = ?`, calendarID).Scan(&modifiable)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrCalendarNotFound, calendarID)
	}
	if err != nil {
		return "", fmt.Errorf("query calendar: %w", err)
	}
	if modifiable == 0 {
		return "", fmt.Errorf("%w: %s", ErrReadOnlyCalendar, calendarID)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, calendar_id, title, location, notes, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, calendarID, draft.Title, draft.Location, draft.Notes, draft.StartDate.UTC(), draft.EndDate.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	for _, a := range draft.Alarms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alarms (event_id, relative_offset, method) VALUES (?, ?, ?)`,
			id, a.RelativeOffset, string(a.Method),
		); err != nil {
			return "", fmt.Errorf("insert alarm: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit event: %w", err)
	}

	p.logger.Debug("Created device event.", "eventID", id, "calendarID", calendarID, "title", draft.Title)
	return id, nil
}

// GetEvent returns a single event.
func (p *Provider) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, calendar_id, title, location, notes, start_time, end_time FROM events WHERE id = ?`,
		eventID,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return models.Event{}, err
	}
	alarms, err := p.alarms(ctx, e.ID)
	if err != nil {
		return models.Event{}, err
	}
	e.Alarms = alarms
	return e, nil
}

// UpdateEvent applies patch to an existing event.
func (p *Provider) UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) error {
	e, err := p.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	patch.Apply(&e)
	if !e.EndDate.After(e.StartDate) {
		return ErrInvalidEventTime
	}

	_, err = p.db.ExecContext(ctx,
		`UPDATE events
		 SET title = ?, location = ?, notes = ?, start_time = ?, end_time = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		e.Title, e.Location, e.Notes, e.StartDate.UTC(), e.EndDate.UTC(), eventID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event and its alarms.
func (p *Provider) DeleteEvent(ctx context.Context, eventID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return nil
}

// ListEvents returns the events of the given calendars overlapping [start, end), ordered by start.
func (p *Provider) ListEvents(ctx context.Context, calendarIDs []string, start, end time.Time) ([]models.Event, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(calendarIDs)+2)
	for _, id := range calendarIDs {
		args = append(args, id)
	}
	args = append(args, end.UTC(), start.UTC())

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, calendar_id, title, location, notes, start_time, end_time
		 FROM events
		 WHERE calendar_id IN (?`+strings.Repeat(", ?", len(calendarIDs)-1)+`)
		   AND start_time < ? AND end_time > ?
		 ORDER BY start_time ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		alarms, err := p.alarms(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Alarms = alarms
	}
	return events, nil
}

func scanEvent(row scanner) (models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.CalendarID, &e.Title, &e.Location, &e.Notes, &e.StartDate, &e.EndDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

func (p *Provider) alarms(ctx context.Context, eventID string) ([]models.Alarm, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT relative_offset, method FROM alarms WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query alarms: %w", err)
	}
	defer rows.Close()

	var alarms []models.Alarm
	for rows.Next() {
		var a models.Alarm
		var method string
		if err := rows.Scan(&a.RelativeOffset, &method); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a.Method = models.AlarmMethod(method)
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
