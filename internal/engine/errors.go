package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or missing seed fields. Callers are
	// expected to re-prompt; nothing inside the engine retries.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDigest is returned when a feature vector is requested from a
	// zero-length digest.
	ErrEmptyDigest = errors.New("empty digest")

	// ErrInvalidSize is returned for non-positive feature vector sizes.
	ErrInvalidSize = errors.New("feature vector size must be positive")

	// ErrUnsupportedAlgorithm is returned by NewHasher for unknown names.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrInvalidFeatures is returned when a feature vector breaks the
	// length/finite/range invariant.
	ErrInvalidFeatures = errors.New("invalid feature vector")
)

// InputError describes which seed field was rejected and why.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalidInput(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
