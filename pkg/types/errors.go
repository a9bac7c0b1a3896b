package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeAvailabilityQuery ErrorType = "availability_query"
	ErrorTypeCapacityQuery     ErrorType = "capacity_query"
	ErrorTypeBookingWrite      ErrorType = "booking_write"
	ErrorTypeScheduleReplace   ErrorType = "schedule_replace"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeAuthentication    ErrorType = "authentication"
	ErrorTypeAuthorization     ErrorType = "authorization"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeInternal          ErrorType = "internal"
)

// SchedulingError represents a structured error of the scheduling core
type SchedulingError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SchedulingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *SchedulingError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAvailabilityQueryError wraps a failed template/doctor read
func NewAvailabilityQueryError(cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeAvailabilityQuery,
		Code:    ErrCodeAvailabilityQueryFailed,
		Message: "failed to load doctor schedules",
		Cause:   cause,
	}
}

// NewCapacityQueryError wraps a failed booking-count read
func NewCapacityQueryError(cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeCapacityQuery,
		Code:    ErrCodeCapacityQueryFailed,
		Message: "failed to load existing bookings",
		Cause:   cause,
	}
}

// NewBookingWriteError wraps a failed appointment insert
func NewBookingWriteError(code, message string, cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeBookingWrite,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewScheduleReplaceError wraps a failed template replacement
func NewScheduleReplaceError(doctorID string, cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeScheduleReplace,
		Code:    ErrCodeScheduleReplaceFailed,
		Message: "failed to replace doctor schedule",
		Details: map[string]interface{}{"doctor_id": doctorID},
		Cause:   cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string, details map[string]interface{}) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeAuthentication,
		Code:    code,
		Message: message,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeAuthorization,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the type of the first SchedulingError in err's chain,
// or ErrorTypeInternal when there is none.
func ErrorTypeOf(err error) ErrorType {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeInternal
}

// ErrorCodeOf returns the code of the first SchedulingError in err's chain
func ErrorCodeOf(err error) string {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternalError
}

// Common error codes
const (
	ErrCodeInvalidInput             = "INVALID_INPUT"
	ErrCodeInvalidDate              = "INVALID_DATE"
	ErrCodeInvalidWeekday           = "INVALID_WEEKDAY"
	ErrCodeInvalidTimeFormat        = "INVALID_TIME_FORMAT"
	ErrCodeInvalidTimeOrder         = "INVALID_TIME_ORDER"
	ErrCodeOverlappingRanges        = "OVERLAPPING_RANGES"
	ErrCodeInvalidCapacity          = "INVALID_CAPACITY"
	ErrCodeEmptySchedule            = "EMPTY_SCHEDULE"
	ErrCodeAvailabilityQueryFailed  = "AVAILABILITY_QUERY_FAILED"
	ErrCodeCapacityQueryFailed      = "CAPACITY_QUERY_FAILED"
	ErrCodeSlotFull                 = "SLOT_FULL"
	ErrCodeBookingWriteFailed       = "BOOKING_WRITE_FAILED"
	ErrCodeScheduleReplaceFailed    = "SCHEDULE_REPLACE_FAILED"
	ErrCodeInvalidStatusTransition  = "INVALID_STATUS_TRANSITION"
	ErrCodeNotFound                 = "NOT_FOUND"
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeForbidden                = "FORBIDDEN"
	ErrCodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError            = "INTERNAL_ERROR"
)
