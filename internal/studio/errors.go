package studio

import "errors"

// GenericMessage is the only text shown to the user when a load or a
// generation fails. Details go to the log.
const GenericMessage = "An error occurred."

var (
	// ErrBusy rejects a request while a load or generation is in flight.
	// It carries no user-visible message.
	ErrBusy = errors.New("busy")
	// ErrNoModel rejects a generation before any model has loaded. Also
	// silent.
	ErrNoModel = errors.New("no model loaded")
	ErrLoad    = errors.New("model load failed")
	// ErrGeneration covers engine failures, engine panics and failures to
	// persist the result.
	ErrGeneration = errors.New("generation failed")
	ErrValidation = errors.New("invalid_request")
)

// ValidationError is a user-facing rejection of a request's inputs.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidation(msg string) error {
	return ValidationError{Message: msg}
}
