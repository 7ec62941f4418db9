package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable matches every *UnavailableError.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrShapeMismatch marks a contract violation between feature width,
	// model layers and score counts. It is fatal and never retried.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotInitialized is returned when a backend or selector is used
	// before a successful Initialize.
	ErrNotInitialized = errors.New("backend not initialized")

	// ErrModelReleased is returned when predicting with a disposed model.
	ErrModelReleased = errors.New("model released")
)

// UnavailableError is returned by Initialize when the compute resource cannot
// be acquired. The selector recovers from it locally.
type UnavailableError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend unavailable: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s backend unavailable: %s", e.Backend, e.Reason)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnavailable}
	}
	return []error{ErrBackendUnavailable, e.Err}
}

// PredictionError is a backend failure during scoring. It propagates to the
// pipeline caller unchanged.
type PredictionError struct {
	Backend string
	Kind    GameKind
	Err     error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s backend: predict %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}
