package entities

import (
	"errors"
	"fmt"
)

// Failure kinds of a refresh cycle
var (
	// ErrFetchFailed is a transport-level failure for one plant
	ErrFetchFailed = errors.New("fetch failed")
	// ErrExtractionFailed means the payload did not have the expected shape
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrRefreshFailed means the whole cycle failed outside the per-plant boundary
	ErrRefreshFailed = errors.New("refresh failed")
)

// PlantError ties a failure kind to the plant it happened for
type PlantError struct {
	Kind  error
	Plant string
	Err   error
}

func (e *PlantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Plant, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Plant, e.Kind)
}

func (e *PlantError) Unwrap() error {
	return e.Err
}

// Is matches the failure kind so callers can use errors.Is(err, ErrFetchFailed)
func (e *PlantError) Is(target error) bool {
	return e.Kind == target
}

// FetchFailed wraps a transport error for a plant
func FetchFailed(plant string, err error) error {
	return &PlantError{Kind: ErrFetchFailed, Plant: plant, Err: err}
}

// ExtractionFailed wraps a shape mismatch for a plant
func ExtractionFailed(plant string, err error) error {
	return &PlantError{Kind: ErrExtractionFailed, Plant: plant, Err: err}
}

// FailureKind names the failure kind of err for logs and metrics
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrFetchFailed):
		return "fetch"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh"
	default:
		return "unexpected"
	}
}
