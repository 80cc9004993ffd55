package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoRefreshToken     = errors.New("no refresh token stored")
	ErrRefreshFailed      = errors.New("token refresh failed")
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *Error) Is(target error) bool {
	if e.Status != http.StatusUnauthorized {
		return false
	}
	switch target {
	case ErrUnauthorized:
		return true
	case ErrInvalidCredentials:
		return isLoginPath(e.Path)
	}
	return false
}

// StatusCode extracts the backend status from err, or 0 if err isn't an *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
