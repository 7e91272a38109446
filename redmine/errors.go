package redmine

import (
	"errors"
	"fmt"
)

// ErrAuthentication indicates the API key was rejected.
var ErrAuthentication = errors.New("redmine: authentication failed")

// NotFoundError indicates a requested resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "redmine: resource not found"
	}
	return fmt.Sprintf("redmine: %s %s not found", e.Resource, e.ID)
}

// RateLimitError indicates the server throttled the request. RetryAfter is
// zero when the server sent no Retry-After header.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("redmine: rate limited, retry after %ds", e.RetryAfter)
	}
	return "redmine: rate limited"
}

// StatusError covers unexpected HTTP responses outside the typed cases.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("redmine: unexpected status %d from %s", e.StatusCode, e.URL)
}
