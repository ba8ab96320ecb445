package httpdto

import (
	"errors"
	"net/http"

	upforit_errors "upforit/pkg/errors"
)

// StatusFor maps a service error onto an HTTP status and response code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, upforit_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, upforit_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, upforit_errors.ErrPermissionDenied):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, upforit_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, upforit_errors.ErrAlreadyExists), errors.Is(err, upforit_errors.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, upforit_errors.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, upforit_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
