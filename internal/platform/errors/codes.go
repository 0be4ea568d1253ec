// Package errors provides structured error handling for the auth core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Auth errors
	CodeValidation        Code = "VALIDATION"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeOTPInvalidExpired Code = "OTP_INVALID_OR_EXPIRED"
	CodeAccountConflict   Code = "ACCOUNT_CONFLICT"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeDeliveryFailure   Code = "EMAIL_DELIVERY_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, unusable or stale credentials,
	// and failed OTP delivery (never reported as success)
	case CodeValidation,
		CodeAlreadyExists,
		CodeOTPInvalidExpired,
		CodeDeliveryFailure:
		return http.StatusBadRequest

	// Not found - the target record does not exist
	case CodeNotFound:
		return http.StatusNotFound

	// Conflict - the operation would collide with existing state
	case CodeAccountConflict:
		return http.StatusConflict

	// Unauthorized - missing or unresolvable identity
	case CodeUnauthenticated:
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}
