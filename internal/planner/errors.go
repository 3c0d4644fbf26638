package planner

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied             = errors.New("calendar access required")
	ErrNoEditableCalendar           = errors.New("no editable calendar available")
	ErrCalendarCreationInconsistent = errors.New("created calendar not found after creation")
	ErrProvider                     = errors.New("calendar provider error")
	ErrNoPackageSelected            = errors.New("no package selected")
	ErrUnknownOption                = errors.New("unknown schedule option")
	ErrSubmissionInFlight           = errors.New("a submission is already in progress")
)

// ProviderError wraps an unexpected failure returned by a CalendarProvider call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProvider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) match any ProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func providerError(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}

// UserMessage returns the short alert shown to the user for err.
func UserMessage(err error) (title, body string) {
	var pe *ProviderError
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &pe) && pe.Op == opCreateEvent:
		return "No se pudo agendar", "Ocurrió un problema al crear el evento. Intenta nuevamente."
	case errors.Is(err, ErrPermissionDenied):
		return "Permiso requerido", "Activa los permisos del calendario para guardar tus aventuras."
	case errors.Is(err, ErrNoEditableCalendar):
		return "Sin calendario editable", "Añade o sincroniza un calendario editable en tu dispositivo."
	case errors.Is(err, ErrCalendarCreationInconsistent), errors.Is(err, ErrProvider):
		return "Error de calendario", "No pudimos acceder al calendario del dispositivo. Intenta nuevamente."
	case errors.Is(err, ErrNoPackageSelected):
		return "Selecciona una experiencia", "Elige un paquete antes de programarlo."
	}
	return "No se pudo agendar", "Ocurrió un problema al crear el evento. Intenta nuevamente."
}
