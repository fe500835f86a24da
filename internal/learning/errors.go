package learning

import (
	"errors"
	"fmt"
)

// ErrHintDeclined is returned when the human explicitly declines to provide
// a hint. It cancels the whole run and is never converted into a Learning.
var ErrHintDeclined = errors.New("hint declined by user")

// PhaseError is the base error type for all phase failures. Every collaborator
// error caught at a phase boundary is wrapped in a PhaseError so it can be
// converted 1:1 into a Learning.
type PhaseError struct {
	Phase   Phase
	Kind    string
	Err     error
	Context string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Learning converts the error into its Learning record.
func (e *PhaseError) Learning() Learning {
	return Learning{
		Phase:     e.Phase,
		ErrorKind: e.Kind,
		Message:   e.Err.Error(),
		Context:   e.Context,
	}
}

// NewAnalyzeError wraps a failure of the analysis phase.
func NewAnalyzeError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseAnalyze, Kind: "AnalyzeError", Err: err}
}

// NewDockerfileError wraps a failure of Dockerfile generation.
func NewDockerfileError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseDockerfile, Kind: "DockerfileError", Err: err}
}

// NewValidationError wraps an unexpected validator failure. A failing grade
// is not an error and is recorded separately.
func NewValidationError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseValidation, Kind: "ValidationError", Err: err}
}

// NewServicesError wraps a failure of compose generation.
func NewServicesError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseServices, Kind: "ServicesError", Err: err}
}

// NewBuildError wraps a docker build failure.
func NewBuildError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseBuild, Kind: "BuildError", Err: err}
}

// NewStartError wraps a container start failure.
func NewStartError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseStart, Kind: "StartError", Err: err}
}

// NewHealthcheckError wraps a health probe failure.
func NewHealthcheckError(err error) *PhaseError {
	return &PhaseError{Phase: PhaseHealthcheck, Kind: "HealthcheckError", Err: err}
}

// FromError converts any error into a Learning. PhaseErrors keep their phase
// and kind; anything else is attributed to the given fallback phase.
func FromError(err error, fallback Phase) Learning {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Learning()
	}
	return Learning{Phase: fallback, ErrorKind: "Error", Message: err.Error()}
}
