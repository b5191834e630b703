package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeExecution              = "EXECUTION_ERROR"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeUnknownStep            = "UNKNOWN_STEP"
	ErrCodeNoStepForProduct       = "NO_STEP_FOR_PRODUCT"
	ErrCodeCircularDependencies   = "CIRCULAR_DEPENDENCIES"
	ErrCodeDependencyNotAvailable = "DEPENDENCY_NOT_AVAILABLE"
	ErrCodeStepFailed             = "STEP_FAILED"
	ErrCodeStore                  = "STORE_ERROR"
	ErrCodeExpression             = "EXPRESSION_ERROR"
	ErrCodePlugin                 = "PLUGIN_ERROR"
)

// TallyError is the structured error type for all reporting operations.
type TallyError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *TallyError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TallyError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TallyError.
func NewError(code, message string) *TallyError {
	return &TallyError{Code: code, Message: message}
}

// NewErrorf creates a new TallyError with a formatted message.
func NewErrorf(code, format string, args ...any) *TallyError {
	return &TallyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *TallyError) WithStep(stepID string) *TallyError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *TallyError) WithCause(err error) *TallyError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TallyError) WithDetails(details map[string]any) *TallyError {
	e.Details = details
	return e
}

// IsCode reports whether any error in err's chain is a TallyError with the given code.
func IsCode(err error, code string) bool {
	var te *TallyError
	for err != nil {
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}
	return false
}
