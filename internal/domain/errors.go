package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrNotFound       = errors.New("not found")
	ErrTenantNotFound = fmt.Errorf("tenant %w", ErrNotFound)
	ErrNoTenants      = errors.New("user owns no tenants")
	ErrNoSession      = errors.New("no active session")

	// ErrAuthExpired marks a terminal authentication failure (401/403).
	ErrAuthExpired = errors.New("authentication expired")
	// ErrTransient marks a failure worth retrying: network, timeout or 5xx.
	ErrTransient = errors.New("transient backend failure")

	ErrSuperseded = errors.New("superseded by a newer activation")
)

// APIError is a failed backend call. Kind is one of the sentinel classes
// above, or nil for a plain request error such as a validation failure.
type APIError struct {
	Op      string
	Status  int
	Message string
	Kind    error
	Cause   error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindForStatus maps an HTTP status to an error class.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthExpired
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient
	default:
		return nil
	}
}

// IsAuthExpired reports whether err is a terminal authentication failure.
func IsAuthExpired(err error) bool { return errors.Is(err, ErrAuthExpired) }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// OwnershipError is returned when a user acts on a tenant they do not own.
type OwnershipError struct {
	TenantID string
	UserID   string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("tenant %q is not owned by user %q", e.TenantID, e.UserID)
}

// SlugConflictError is returned when a tenant slug is already in use.
type SlugConflictError struct {
	Slug string
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %q is already in use", e.Slug)
}

// TransitionError is returned when a job state transition is not allowed.
type TransitionError struct {
	Event   JobEvent
	Current JobState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// AccessError is returned when an action on a tenant is refused by the
// access rules. Decision says where the user should go instead.
type AccessError struct {
	Slug     string
	Decision Decision
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access to tenant %q refused: %s", e.Slug, e.Decision.Kind)
}
