package orderflow

import (
	"errors"
	"fmt"
)

// WebhookError represents an error with an associated HTTP status code.
type WebhookError struct {
	Code    int
	Message string
	Err     error
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// Sentinel errors for the webhook handler.
var (
	ErrVerifyTokenMismatch = &WebhookError{Code: 403, Message: "verification token mismatch"}
	ErrUnauthorized        = &WebhookError{Code: 401, Message: "unauthorized"}
	ErrMethodNotAllowed    = &WebhookError{Code: 405, Message: "method not allowed"}
	ErrChannelBlocked      = &WebhookError{Code: 503, Message: "messages channel blocked"}
	ErrBodyReadFailed      = &WebhookError{Code: 500, Message: "failed to read request body"}
	ErrInvalidJSON         = &WebhookError{Code: 400, Message: "invalid JSON payload"}
)

// Sentinel errors for the form engine and stores.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrSessionCorrupted = errors.New("session step outside the known sequence")
)

// APIError represents an error response from an upstream HTTP API
// (the send API or the completion API).
type APIError struct {
	API         string
	Code        int
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error [%d]: %s: %v", e.API, e.Code, e.Description, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s API error [%d]: %s", e.API, e.Code, e.Description)
	}
	return fmt.Sprintf("%s API error: %s", e.API, e.Description)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
