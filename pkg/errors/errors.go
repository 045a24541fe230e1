package errors

import (
	"errors"
	"fmt"
)

// Error types for better error classification and handling

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeProcess     ErrorType = "process"
	ErrorTypeHealthCheck ErrorType = "health_check"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypePermission  ErrorType = "permission"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeCancelled   ErrorType = "cancelled"

	// Launcher and terminator outcomes surfaced to the operator
	ErrorTypeUnknownService     ErrorType = "unknown_service"
	ErrorTypeKindMismatch       ErrorType = "kind_mismatch"
	ErrorTypePathNotFound       ErrorType = "path_not_found"
	ErrorTypeAlreadyRunning     ErrorType = "already_running"
	ErrorTypeLaunchFailed       ErrorType = "launch_failed"
	ErrorTypePartialStopFailure ErrorType = "partial_stop_failure"

	// Non-fatal, logged by the caller
	ErrorTypePortReconcile ErrorType = "port_reconcile"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the type of the outermost DomainError in the chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// Validation errors
func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

// Process errors
func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewHealthCheckError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeHealthCheck, message, cause)
}

// System errors
func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// Launcher errors
func NewUnknownServiceError(service string) *DomainError {
	return NewDomainError(ErrorTypeUnknownService, fmt.Sprintf("service '%s' not found in catalog", service), nil).
		WithContext("service", service)
}

func NewKindMismatchError(service string, expected, actual string) *DomainError {
	return NewDomainError(ErrorTypeKindMismatch, fmt.Sprintf("service '%s' is a %s, not a %s", service, actual, expected), nil).
		WithContext("service", service).WithContext("expected_kind", expected).WithContext("actual_kind", actual)
}

func NewPathNotFoundError(path string, cause error) *DomainError {
	return NewDomainError(ErrorTypePathNotFound, fmt.Sprintf("working directory does not exist: %s", path), cause).
		WithContext("path", path)
}

func NewAlreadyRunningError(service string, port int, pid int) *DomainError {
	return NewDomainError(ErrorTypeAlreadyRunning, fmt.Sprintf("service '%s' is already running on port %d", service, port), nil).
		WithContext("service", service).WithContext("port", port).WithContext("pid", pid)
}

// NewLaunchFailedError carries the captured output of a child that exited during startup
func NewLaunchFailedError(service string, diagnostic string, cause error) *DomainError {
	message := fmt.Sprintf("service '%s' exited during startup", service)
	if diagnostic != "" {
		message += ": " + diagnostic
	}
	return NewDomainError(ErrorTypeLaunchFailed, message, cause).
		WithContext("service", service).WithContext("diagnostic", diagnostic)
}

func NewPartialStopFailureError(service string, stopped, failed int, cause error) *DomainError {
	return NewDomainError(ErrorTypePartialStopFailure, fmt.Sprintf("stopped %d of %d instances of '%s'", stopped, stopped+failed, service), cause).
		WithContext("service", service).WithContext("stopped", stopped).WithContext("failed", failed)
}

func NewPortReconcileWarning(port int, cause error) *DomainError {
	return NewDomainError(ErrorTypePortReconcile, fmt.Sprintf("could not free port %d", port), cause).
		WithContext("port", port)
}

// Error checking helpers. A type matches anywhere in the chain, including
// errors wrapped by an outer DomainError or gathered in an ErrorCollection.
func isType(err error, errorType ErrorType) bool {
	return errors.Is(err, &DomainError{Type: errorType})
}

func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

func IsProcessError(err error) bool {
	return isType(err, ErrorTypeProcess)
}

func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func IsPermissionError(err error) bool {
	return isType(err, ErrorTypePermission)
}

func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return isType(err, ErrorTypeCancelled)
}

func IsUnknownServiceError(err error) bool {
	return isType(err, ErrorTypeUnknownService)
}

func IsKindMismatchError(err error) bool {
	return isType(err, ErrorTypeKindMismatch)
}

func IsPathNotFoundError(err error) bool {
	return isType(err, ErrorTypePathNotFound)
}

func IsAlreadyRunningError(err error) bool {
	return isType(err, ErrorTypeAlreadyRunning)
}

func IsLaunchFailedError(err error) bool {
	return isType(err, ErrorTypeLaunchFailed)
}

func IsPartialStopFailureError(err error) bool {
	return isType(err, ErrorTypePartialStopFailure)
}

func IsPortReconcileWarning(err error) bool {
	return isType(err, ErrorTypePortReconcile)
}

// Error aggregation for bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is / errors.As
func (e *ErrorCollection) Unwrap() []error {
	return e.Errors
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
