// Package errors provides the structured error system used by the plasma store:
// error codes, categories, contextual metadata and the Result triple returned by
// every public store operation.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for store operations.
type ErrorCode string

const (
	// Success is the code carried by a successful Result.
	ErrCodeOK ErrorCode = "OK"

	// Object state errors
	ErrCodeObjectExists        ErrorCode = "OBJECT_EXISTS"
	ErrCodeObjectNotFound      ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeObjectAlreadySealed ErrorCode = "OBJECT_ALREADY_SEALED"
	ErrCodeObjectNotSealed     ErrorCode = "OBJECT_NOT_SEALED"

	// Resource errors
	ErrCodeOutOfMemory ErrorCode = "OUT_OF_MEMORY"
	ErrCodeOutOfDisk   ErrorCode = "OUT_OF_DISK"

	// Request and I/O errors
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeIOError        ErrorCode = "IO_ERROR"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Programming-error fallback
	ErrCodeUnexpected ErrorCode = "UNEXPECTED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryObject        ErrorCategory = "object"
	CategoryResource      ErrorCategory = "resource"
	CategoryRequest       ErrorCategory = "request"
	CategoryIO            ErrorCategory = "io"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinel errors for errors.Is comparisons. Matching is by code only.
var (
	ErrObjectExists        = NewError(ErrCodeObjectExists, "object already exists")
	ErrObjectNotFound      = NewError(ErrCodeObjectNotFound, "object not found")
	ErrObjectAlreadySealed = NewError(ErrCodeObjectAlreadySealed, "object already sealed")
	ErrObjectNotSealed     = NewError(ErrCodeObjectNotSealed, "object not sealed")
	ErrOutOfMemory         = NewError(ErrCodeOutOfMemory, "out of memory")
	ErrOutOfDisk           = NewError(ErrCodeOutOfDisk, "out of disk")
	ErrInvalidRequest      = NewError(ErrCodeInvalidRequest, "invalid request")
	ErrIO                  = NewError(ErrCodeIOError, "i/o error")
	ErrUnexpected          = NewError(ErrCodeUnexpected, "unexpected error")
)

// PlasmaError represents a structured error with context and metadata.
type PlasmaError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *PlasmaError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *PlasmaError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *PlasmaError) Is(target error) bool {
	if other, ok := target.(*PlasmaError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *PlasmaError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("PlasmaError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *PlasmaError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new store error with default values.
func NewError(code ErrorCode, message string) *PlasmaError {
	return &PlasmaError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf creates a new store error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *PlasmaError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error with the given code whose cause is err.
func Wrap(err error, code ErrorCode, message string) *PlasmaError {
	return NewError(code, message).WithCause(err)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "OBJECT_"):
		return CategoryObject
	case strings.HasPrefix(codeStr, "OUT_OF_"):
		return CategoryResource
	case strings.HasPrefix(codeStr, "INVALID_REQUEST"):
		return CategoryRequest
	case strings.HasPrefix(codeStr, "IO_"):
		return CategoryIO
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether a caller may reasonably retry after
// freeing resources.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeOutOfMemory, ErrCodeOutOfDisk, ErrCodeIOError:
		return true
	}
	return false
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeOK:                  200,
		ErrCodeInvalidRequest:      400, // Bad Request
		ErrCodeInvalidConfig:       400,
		ErrCodeObjectNotFound:      404, // Not Found
		ErrCodeObjectExists:        409, // Conflict
		ErrCodeObjectAlreadySealed: 409,
		ErrCodeObjectNotSealed:     409,
		ErrCodeOutOfMemory:         507, // Insufficient Storage
		ErrCodeOutOfDisk:           507,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *PlasmaError) WithContext(key, value string) *PlasmaError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *PlasmaError) WithDetail(key string, value interface{}) *PlasmaError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *PlasmaError) WithComponent(component string) *PlasmaError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *PlasmaError) WithOperation(operation string) *PlasmaError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *PlasmaError) WithCause(cause error) *PlasmaError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *PlasmaError) WithStack() *PlasmaError {
	e.Stack = CaptureStack(2)
	return e
}

// CodeOf extracts the error code from err. A nil error yields ErrCodeOK and
// an error outside the taxonomy yields ErrCodeUnexpected.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var pe *PlasmaError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeUnexpected
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
