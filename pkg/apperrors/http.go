package apperrors

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Status maps an error kind to its HTTP status.
func Status(k Kind) int {
	switch k {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindDuplicateBooking, KindDuplicateLicense:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// ToHTTP converts a service error to an echo error. Validation errors keep
// their field-keyed body, permission errors use {"detail": ...}, anything
// unrecognised becomes a 500 whose cause is kept for the request logger.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, map[string]string{"detail": "Not found."})
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Kind == KindPermissionDenied {
			return echo.NewHTTPError(http.StatusForbidden, map[string]string{"detail": ve.Message})
		}
		field := ve.Field
		if field == "" {
			field = "non_field_errors"
		}
		return echo.NewHTTPError(Status(ve.Kind), map[string][]string{field: {ve.Message}}).SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
