// Package apperrors defines the error taxonomy shared across the
// OAuth handshake, session, quota, and billing surfaces.
package apperrors

import (
	"errors"
	"fmt"
)

// Error codes carried in the user-facing error envelope.
const (
	CodeConfiguration  = "configuration_error"
	CodeCsrf           = "csrf_error"
	CodeExchange       = "exchange_error"
	CodeSessionAbsent  = "session_absent"
	CodeBillingMissing = "billing_link_missing"
	CodeNetwork        = "network_error"
)

// Error is a coded application error suitable for the
// {error, error_code, error_description} envelope.
type Error struct {
	Code        string
	Message     string
	Description string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Description)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewConfiguration reports an unknown provider or mode. Not user-retryable.
func NewConfiguration(description string) *Error {
	return &Error{Code: CodeConfiguration, Message: "invalid configuration", Description: description}
}

// NewCsrf reports a state mismatch. Fatal to the handshake.
func NewCsrf(description string) *Error {
	return &Error{Code: CodeCsrf, Message: "state verification failed", Description: description}
}

// NewExchange reports a rejected token exchange with provider detail.
func NewExchange(description string, cause error) *Error {
	return &Error{Code: CodeExchange, Message: "token exchange failed", Description: description, Err: cause}
}

// NewSessionAbsent reports a missing or expired session.
func NewSessionAbsent() *Error {
	return &Error{Code: CodeSessionAbsent, Message: "no valid session"}
}

// NewBillingLinkMissing reports a paid-plan user without a billing customer.
func NewBillingLinkMissing(userID string) *Error {
	return &Error{Code: CodeBillingMissing, Message: "no billing record", Description: fmt.Sprintf("no billing customer stored for user %s", userID)}
}

// NewNetwork reports an unreachable upstream. Retryable.
func NewNetwork(cause error) *Error {
	return &Error{Code: CodeNetwork, Message: "upstream unreachable", Err: cause}
}

// CodeOf returns the application error code, or empty for plain errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// Envelope renders the stable three-field error contract.
func Envelope(err error) map[string]string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return map[string]string{
			"error":             appErr.Message,
			"error_code":        appErr.Code,
			"error_description": appErr.Description,
		}
	}
	return map[string]string{
		"error":             "internal error",
		"error_code":        "internal_error",
		"error_description": "",
	}
}
