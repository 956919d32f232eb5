package errors

import (
	stderrors "errors"
	"fmt"
)

// Result is the outcome of a public store operation: a success flag, the
// error code and a human-readable message.
type Result struct {
	Success bool      `json:"success"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// OK returns a successful Result.
func OK() Result {
	return Result{Success: true, Code: ErrCodeOK}
}

// Fail returns a failed Result with the given code and message.
func Fail(code ErrorCode, message string) Result {
	return Result{Code: code, Message: message}
}

// ResultOf converts err into a Result. A nil error is a success. The message
// of a PlasmaError excludes its code, which the Result carries separately.
func ResultOf(err error) Result {
	if err == nil {
		return OK()
	}
	var pe *PlasmaError
	if !stderrors.As(err, &pe) {
		return Result{Code: ErrCodeUnexpected, Message: err.Error()}
	}
	message := pe.Message
	if pe.Cause != nil {
		message = fmt.Sprintf("%s: %v", message, pe.Cause)
	}
	return Result{Code: pe.Code, Message: message}
}

// Err converts the Result back into an error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return NewError(r.Code, r.Message)
}

// Is reports whether the Result failed with the given code.
func (r Result) Is(code ErrorCode) bool {
	return !r.Success && r.Code == code
}

func (r Result) String() string {
	if r.Success {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}
