package apperr

import "net/http"

type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeResourceInactive    Code = "RESOURCE_INACTIVE"
	CodeResourceConflict    Code = "RESOURCE_CONFLICT"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL"
)

// Retryable reports whether a caller may retry the same request unchanged.
func Retryable(code Code) bool {
	return code == CodeUpstreamUnavailable
}

// HTTPStatus maps a code to the status used by the conversation endpoints.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeResourceInactive:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeResourceConflict:
		return http.StatusConflict
	case CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CallStatus maps a code to the call-start surface, which only
// distinguishes "log in again" (401) from everything else (400).
func CallStatus(code Code) int {
	if code == CodeUnauthenticated {
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}
