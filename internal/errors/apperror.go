package errors

import (
	"fmt"
	"runtime"
	"time"
)

// ErrorType represents the failure categories of a capsule run
type ErrorType string

const (
	ErrorTypeBeaconUnavailable ErrorType = "beacon_unavailable"
	ErrorTypeEncryptionFailed  ErrorType = "encryption_failed"
	ErrorTypeDecryptionFailed  ErrorType = "decryption_failed"
	ErrorTypeSigningFailed     ErrorType = "signing_failed"
	ErrorTypeRelayUnreachable  ErrorType = "relay_unreachable"
	ErrorTypeRelayRejected     ErrorType = "relay_rejected"
	ErrorTypeUnknownChain      ErrorType = "unknown_chain"
	ErrorTypeInvalidTag        ErrorType = "invalid_tag"
	ErrorTypeInvalidEvent      ErrorType = "invalid_event"
	ErrorTypeDependencyMissing ErrorType = "dependency_missing"
	ErrorTypeInterrupted       ErrorType = "interrupted"
	ErrorTypeConfiguration     ErrorType = "configuration"
	ErrorTypeInternal          ErrorType = "internal"
)

// ErrorSeverity represents the severity level of errors
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"      // run continues unaffected
	SeverityMedium   ErrorSeverity = "medium"   // one capsule workflow affected
	SeverityHigh     ErrorSeverity = "high"     // run cannot succeed
	SeverityCritical ErrorSeverity = "critical" // run cannot start
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType     `json:"type"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Severity    ErrorSeverity `json:"severity"`
	Timestamp   time.Time     `json:"timestamp"`
	UserMessage string        `json:"user_message,omitempty"`
	Cause       error         `json:"-"`
	StackTrace  string        `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap implements the Unwrap interface for error wrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type. A target with a
// code set must match the code as well.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// New creates a new AppError with stack trace capture
func New(errorType ErrorType, code string, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Severity:   SeverityMedium,
		Timestamp:  time.Now(),
		StackTrace: captureStackTrace(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errorType ErrorType, code string, message string) *AppError {
	appErr := New(errorType, code, message)
	appErr.Cause = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// WithSeverity sets the severity level of an error
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithDetails adds additional details to an error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(message string) *AppError {
	e.UserMessage = message
	return e
}

// UserFacing returns the message shown in progress output and the final report
func (e *AppError) UserFacing() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
