package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// Sentinels for errors.Is matching by type
var (
	ErrBeaconUnavailable = &AppError{Type: ErrorTypeBeaconUnavailable}
	ErrEncryptionFailed  = &AppError{Type: ErrorTypeEncryptionFailed}
	ErrDecryptionFailed  = &AppError{Type: ErrorTypeDecryptionFailed}
	ErrSigningFailed     = &AppError{Type: ErrorTypeSigningFailed}
	ErrRelayUnreachable  = &AppError{Type: ErrorTypeRelayUnreachable}
	ErrRelayRejected     = &AppError{Type: ErrorTypeRelayRejected}
	ErrUnknownChain      = &AppError{Type: ErrorTypeUnknownChain}
	ErrInvalidTag        = &AppError{Type: ErrorTypeInvalidTag}
	ErrInvalidEvent      = &AppError{Type: ErrorTypeInvalidEvent}
	ErrDependencyMissing = &AppError{Type: ErrorTypeDependencyMissing}
	ErrInterrupted       = &AppError{Type: ErrorTypeInterrupted}
	ErrConfiguration     = &AppError{Type: ErrorTypeConfiguration}

	// ErrBeaconDegraded matches a waiter that gave up after too many failed polls
	ErrBeaconDegraded = &AppError{Type: ErrorTypeBeaconUnavailable, Code: "BEACON_DEGRADED"}
	// ErrTooEarly matches a decryption attempted before the bound round
	ErrTooEarly = &AppError{Type: ErrorTypeDecryptionFailed, Code: "TOO_EARLY"}
)

// BeaconUnavailable creates an error for failed beacon reads
func BeaconUnavailable(endpoint string, cause error) *AppError {
	code := "BEACON_UNAVAILABLE"
	if isTimeout(cause) {
		code = "BEACON_TIMEOUT"
	}
	return Wrap(cause, ErrorTypeBeaconUnavailable, code, fmt.Sprintf("Beacon request to %s failed", endpoint)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The randomness beacon could not be reached.")
}

// BeaconMalformed creates an error for beacon responses that could not be parsed
func BeaconMalformed(endpoint, reason string) *AppError {
	return New(ErrorTypeBeaconUnavailable, "BEACON_MALFORMED", fmt.Sprintf("Malformed beacon response from %s", endpoint)).
		WithSeverity(SeverityHigh).
		WithDetails(reason)
}

// BeaconDegraded creates an error for a waiter that exhausted its failure budget
func BeaconDegraded(failures int, cause error) *AppError {
	return Wrap(cause, ErrorTypeBeaconUnavailable, "BEACON_DEGRADED",
		fmt.Sprintf("Beacon unreachable for %d consecutive polls", failures)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The beacon stayed unreachable while waiting for the unlock round.")
}

// EncryptionFailed creates an error for a failing time-lock or NIP-44 encryption
func EncryptionFailed(layer string, cause error) *AppError {
	return Wrap(cause, ErrorTypeEncryptionFailed, "ENCRYPTION_FAILED", fmt.Sprintf("%s encryption failed", layer)).
		WithSeverity(SeverityHigh)
}

// DecryptionFailed creates an error for a failing time-lock or NIP-44 decryption
func DecryptionFailed(layer string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDecryptionFailed, "DECRYPTION_FAILED", fmt.Sprintf("%s decryption failed", layer)).
		WithSeverity(SeverityMedium)
}

// TooEarly creates an error for a ciphertext whose round has not been reached
func TooEarly(round uint64, cause error) *AppError {
	msg := "Time-lock round not reached yet"
	if round > 0 {
		msg = fmt.Sprintf("Time-lock round %d not reached yet", round)
	}
	return Wrap(cause, ErrorTypeDecryptionFailed, "TOO_EARLY", msg).
		WithSeverity(SeverityMedium).
		WithUserMessage("The capsule cannot be opened before its unlock round.")
}

// SigningFailed creates an error for a failing event signature
func SigningFailed(kind int, cause error) *AppError {
	return Wrap(cause, ErrorTypeSigningFailed, "SIGNING_FAILED", fmt.Sprintf("Signing kind %d event failed", kind)).
		WithSeverity(SeverityHigh)
}

// RelayUnreachable creates an error for transport failures towards the relay
func RelayUnreachable(operation string, cause error) *AppError {
	code := "RELAY_UNREACHABLE"
	if isTimeout(cause) {
		code = "RELAY_TIMEOUT"
	}
	return Wrap(cause, ErrorTypeRelayUnreachable, code, fmt.Sprintf("Relay %s failed", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("The relay could not be reached.")
}

// RelayRejected creates an error for an explicit negative OK from the relay
func RelayRejected(eventID, message string) *AppError {
	if message == "" {
		message = "no reason given"
	}
	return New(ErrorTypeRelayRejected, "RELAY_REJECTED", "Relay rejected event").
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("event %s: %s", eventID, message)).
		WithUserMessage(message)
}

// RelayIDMismatch creates an error for an OK frame acknowledging a different event
func RelayIDMismatch(sent, acknowledged string) *AppError {
	return New(ErrorTypeRelayRejected, "RELAY_ID_MISMATCH", "Relay acknowledged a different event").
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("sent %s, acknowledged %s", sent, acknowledged))
}

// UnknownChain creates an error for a chain hash missing from the network table
func UnknownChain(chainHash string) *AppError {
	return New(ErrorTypeUnknownChain, "UNKNOWN_CHAIN", "Unknown drand chain").
		WithSeverity(SeverityMedium).
		WithDetails(chainHash)
}

// InvalidTag creates an error for a missing or malformed protocol tag
func InvalidTag(tag, reason string) *AppError {
	return New(ErrorTypeInvalidTag, "INVALID_TAG", fmt.Sprintf("Invalid %s tag", tag)).
		WithSeverity(SeverityMedium).
		WithDetails(reason)
}

// InvalidEvent creates an error for an event violating the capsule rules
func InvalidEvent(eventID, reason string) *AppError {
	return New(ErrorTypeInvalidEvent, "INVALID_EVENT", fmt.Sprintf("Event validation failed: %s", reason)).
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("event %s", eventID))
}

// DependencyMissing creates an error for an external tool that is not installed
func DependencyMissing(names ...string) *AppError {
	return New(ErrorTypeDependencyMissing, "DEPENDENCY_MISSING", "Missing dependencies").
		WithSeverity(SeverityCritical).
		WithDetails(strings.Join(names, ", "))
}

// Interrupted creates an error for a run cancelled from outside
func Interrupted(stage string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInterrupted, "INTERRUPTED", fmt.Sprintf("Interrupted while %s", stage)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The run was interrupted.")
}

// ConfigurationError creates an error for configuration issues
func ConfigurationError(field, reason string) *AppError {
	return New(ErrorTypeConfiguration, "CONFIGURATION_ERROR", fmt.Sprintf("Configuration error in %s", field)).
		WithSeverity(SeverityCritical).
		WithDetails(reason)
}

// InternalError creates an internal error
func InternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "INTERNAL_ERROR", message).
		WithSeverity(SeverityHigh)
}

// TypeOf returns the ErrorType of the first AppError in the chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsCancellation reports whether err stems from context cancellation.
func IsCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled)
}

// IsRecoverable determines if an error is worth retrying
func IsRecoverable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Type {
	case ErrorTypeBeaconUnavailable, ErrorTypeRelayUnreachable:
		return appErr.Code != "BEACON_DEGRADED"
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// IsMissingExecutable reports whether err comes from an executable lookup failure.
func IsMissingExecutable(err error) bool {
	return stderrors.Is(err, exec.ErrNotFound)
}
