package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by authenticated calls when no session
	// is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired is returned when the session could not be renewed.
	// The stored session has been cleared by the time it is returned.
	ErrSessionExpired = errors.New("session expired")
)

// Error is a non-2xx response from the remote service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("siteray api error (%d): %s", e.Status, e.Message)
}

// newError extracts a human-readable message from an error body of the form
// {"error": "..."} or {"message": "..."}, falling back to def.
func newError(status int, body []byte, def string) *Error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := def
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Error != "" {
			msg = apiErr.Error
		} else if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}
	return &Error{Status: status, Message: msg}
}

// IsAuthError reports whether err means the user has to log in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrSessionExpired)
}

// UserMessage converts an error into the text shown to the user.
func UserMessage(err error) string {
	var apiErr *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionExpired):
		return "Session expired"
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}
