package planner

import (
	"context"
	"fmt"
	"log/slog"
	"mappo/internal/models"
	"sync"
	"time"
)

// State is a step of the scheduling flow.
type State int

const (
	StateIdle State = iota
	StatePackageSelected
	StateCalendarResolving
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePackageSelected:
		return "package-selected"
	case StateCalendarResolving:
		return "calendar-resolving"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result describes a scheduled experience.
type Result struct {
	EventID    string
	CalendarID string
	Draft      models.EventDraft
	// Discarded is set when the flow was dismissed while the provider call was running.
	Discarded bool
}

// Message is the confirmation shown after a successful submission.
func (r Result) Message() string {
	return fmt.Sprintf("%s se agregó a tu calendario.", r.Draft.Title)
}

// Flow drives one scheduling interaction: select a package, pick an option,
// write the event. Only one submission runs at a time.
type Flow struct {
	logger   *slog.Logger
	resolver *Resolver
	provider CalendarProvider

	mu         sync.Mutex
	state      State
	history    []State
	selected   *models.ExperiencePackage
	options    []models.ScheduleOption
	calendar   *models.CalendarHandle
	submitting bool
	generation int
	lastErr    error
}

// NewFlow creates an idle Flow writing through provider.
func NewFlow(logger *slog.Logger, provider CalendarProvider, platform Platform) *Flow {
	return &Flow{
		logger:   logger,
		resolver: NewResolver(logger, provider, platform),
		provider: provider,
		state:    StateIdle,
		history:  []State{StateIdle},
	}
}

// SelectPackage opens the flow for pkg and regenerates the options relative to now.
func (f *Flow) SelectPackage(pkg models.ExperiencePackage, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitting {
		return ErrSubmissionInFlight
	}
	f.generation++
	f.selected = &pkg
	f.options = GenerateOptions(now)
	f.lastErr = nil
	f.setState(StatePackageSelected)
	return nil
}

// Choose schedules the selected package at the option with the given id.
// While a submission is pending, further calls return ErrSubmissionInFlight and do nothing.
func (f *Flow) Choose(ctx context.Context, optionID string) (Result, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		f.logger.Debug("Ignoring option while a submission is pending.", "option", optionID)
		return Result{}, ErrSubmissionInFlight
	}
	if f.selected == nil {
		f.mu.Unlock()
		return Result{}, ErrNoPackageSelected
	}
	option, ok := FindOption(f.options, optionID)
	if !ok {
		f.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOption, optionID)
	}
	pkg := *f.selected
	cached := f.calendar
	gen := f.generation
	f.submitting = true
	f.setState(StateCalendarResolving)
	f.mu.Unlock()

	var calendar models.CalendarHandle
	if cached != nil {
		calendar = *cached
	} else {
		var err error
		calendar, err = f.resolver.ResolveWritableCalendar(ctx)
		if err != nil {
			return Result{}, f.fail(gen, err)
		}
	}

	f.mu.Lock()
	if gen != f.generation {
		f.submitting = false
		f.mu.Unlock()
		return Result{CalendarID: calendar.ID, Discarded: true}, nil
	}
	f.calendar = &calendar
	f.setState(StateSubmitting)
	f.mu.Unlock()

	draft := Materialize(pkg, option)
	eventID, err := f.provider.CreateEvent(ctx, calendar.ID, draft)
	if err != nil {
		return Result{}, f.fail(gen, providerError(opCreateEvent, err))
	}

	res := Result{EventID: eventID, CalendarID: calendar.ID, Draft: draft}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if gen != f.generation {
		res.Discarded = true
		return res, nil
	}
	f.logger.Info("Experience scheduled.", "package", pkg.ID, "option", option.ID, "calendarID", calendar.ID, "eventID", eventID)
	f.setState(StateSucceeded)
	f.reset()
	return res, nil
}

// Dismiss closes the flow. The result of a provider call already dispatched is
// discarded, and the flow stays busy until that call returns.
func (f *Flow) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.reset()
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns every state the flow has entered, oldest first.
func (f *Flow) History() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.history...)
}

// Selected returns the selected package, or nil.
func (f *Flow) Selected() *models.ExperiencePackage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == nil {
		return nil
	}
	pkg := *f.selected
	return &pkg
}

// Options returns the options generated when the package was selected.
func (f *Flow) Options() []models.ScheduleOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ScheduleOption(nil), f.options...)
}

// Submitting reports whether a submission is pending.
func (f *Flow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// LastError returns the error of the last failed submission.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// fail records err and returns to idle keeping the selected package for a retry.
func (f *Flow) fail(gen int, err error) error {
	title, body := UserMessage(err)
	f.logger.Error("Scheduling failed.", "error", err, "alert", title+": "+body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if gen != f.generation {
		return err
	}
	f.lastErr = err
	f.setState(StateFailed)
	f.setState(StateIdle)
	return err
}

// reset must be called with mu held. It leaves submitting to the pending Choose.
func (f *Flow) reset() {
	f.selected = nil
	f.options = nil
	f.calendar = nil
	if f.state != StateIdle {
		f.setState(StateIdle)
	}
}

// setState must be called with mu held.
func (f *Flow) setState(s State) {
	f.state = s
	f.history = append(f.history, s)
}
