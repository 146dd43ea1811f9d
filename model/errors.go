package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInvalidTransition  = "INVALID_TRANSITION"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Wizard-specific error codes.
const (
	ErrWizardInvalidStep   = "WIZARD_INVALID_STEP"
	ErrClientNotEligible   = "CLIENT_NOT_ELIGIBLE"
	ErrFinalizationFailed  = "FINALIZATION_FAILED"
	ErrActivityTypeUnknown = "ACTIVITY_TYPE_UNKNOWN"
	ErrDraftUnavailable    = "DRAFT_STORE_UNAVAILABLE"
)

// ErrorEnvelope is the standard error response envelope returned by the BFF.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidStepError returns a WIZARD_INVALID_STEP error for operations
// attempted outside their legal wizard step.
func NewInvalidStepError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWizardInvalidStep, Message: msg}
}

// NewClientNotEligibleError returns a CLIENT_NOT_ELIGIBLE error.
func NewClientNotEligibleError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrClientNotEligible, Message: msg}
}

// NewFinalizationFailedError returns a FINALIZATION_FAILED error. The draft
// is preserved so the caller may retry without re-entering prior steps.
func NewFinalizationFailedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrFinalizationFailed, Message: msg}
}

// NewActivityTypeUnknownError returns an ACTIVITY_TYPE_UNKNOWN error, used
// when the unknown-applicability policy blocks progression.
func NewActivityTypeUnknownError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrActivityTypeUnknown, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}
