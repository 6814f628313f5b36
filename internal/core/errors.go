package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeRateLimited    = "rate_limited"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrUnknownCategory     = errors.New("unknown room category")
	ErrHubStopped          = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError with the given code.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
