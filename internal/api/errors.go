package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the backend rejects the session (HTTP 401).
// The client's OnUnauthorized hook has already fired when this surfaces.
var ErrUnauthorized = errors.New("api: unauthorized")

// AuthError kinds.
const (
	AuthKindInvalidCredentials = "invalid_credentials"
	AuthKindNetwork            = "network"
)

// AuthError is returned by the auth endpoints. Kind distinguishes a rejected
// credential (message is shown to the human) from a transport failure.
type AuthError struct {
	Kind    string
	Message string
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// APIError is a backend 4xx/5xx on a non-auth call.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}
