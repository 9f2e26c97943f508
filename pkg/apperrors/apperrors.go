// Package apperrors defines the domain error vocabulary shared by the doctor
// and scheduling services and its translation to HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind string

const (
	KindPastDate          Kind = "past_date"
	KindInvalidRange      Kind = "invalid_range"
	KindOverlap           Kind = "overlap"
	KindPermissionDenied  Kind = "permission_denied"
	KindDoctorUnavailable Kind = "doctor_unavailable"
	KindPastSchedule      Kind = "past_schedule"
	KindInvalidDuration   Kind = "invalid_duration"
	KindDuplicateBooking  Kind = "duplicate_booking"
	KindInvalidStatus     Kind = "invalid_status"
	KindInvalidReference  Kind = "invalid_reference"
	KindInvalidURL        Kind = "invalid_url"
	KindDuplicateLicense  Kind = "duplicate_license"
	KindRequired          Kind = "required"
	KindInvalidValue      Kind = "invalid_value"
)

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError is a rejected request. Field names the offending input
// ("day", "time_range", "overlap", "non_field_errors"...); it keys the HTTP
// error body.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches another *ValidationError of the same kind, so callers can write
// errors.Is(err, apperrors.New(apperrors.KindOverlap, "", "")).
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

func New(kind Kind, field, message string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: message}
}

// Wrap is New with an underlying cause, typically a storage constraint error.
func Wrap(kind Kind, field, message string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: message, Err: err}
}

// PermissionDenied carries no detail about which check failed.
func PermissionDenied() *ValidationError {
	return New(KindPermissionDenied, "", "You do not have permission to perform this action.")
}

func Required(field string) *ValidationError {
	return New(KindRequired, field, "This field is required.")
}

// KindOf returns the kind of the first ValidationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a ValidationError of kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
