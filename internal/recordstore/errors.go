package recordstore

import (
	"fmt"

	"nfewatch/internal/services"
)

// ConnectivityError reports that the store could not be reached.
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("record store unreachable at %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return []error{services.ErrTransient, e.Err}
}

// FetchError reports a failed read (pending records, stats, inserts).
// StatusCode is zero for transport failures.
type FetchError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("record store %s returned %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("record store %s failed: %v", e.Operation, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{markerFor(e.StatusCode), e.Err}
}

// UpdateError reports a failed status transition for a record.
type UpdateError struct {
	ID         int64
	StatusCode int
	Body       string
	Err        error
}

func (e *UpdateError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mark record %d completed returned %d: %s", e.ID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("mark record %d completed failed: %v", e.ID, e.Err)
}

func (e *UpdateError) Unwrap() []error {
	return []error{markerFor(e.StatusCode), e.Err}
}

func markerFor(status int) error {
	switch {
	case status == 404:
		return services.ErrNotFound
	case status >= 400 && status < 500:
		return services.ErrValidation
	default:
		return services.ErrTransient
	}
}
