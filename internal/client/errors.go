package client

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed is returned when the API cannot be reached or answers with a non-2xx status.
	ErrRequestFailed = errors.New("parkingo client: request failed")

	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("parkingo client: unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("parkingo client: not found")

	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("parkingo client: invalid response")
)

// APIError is a non-2xx response. Message carries the server's "message" field when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", ErrRequestFailed, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrRequestFailed, e.StatusCode, e.Message)
}

// Is lets errors.Is match the status-specific sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRequestFailed:
		return true
	case ErrUnauthorized:
		return e.StatusCode == 401
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// ServerMessage extracts the server-provided message from err, if any.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
