package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthentication  = errors.New("provider authentication failed")
	ErrRateLimited     = errors.New("provider rate limit exceeded")
	ErrProviderFailure = errors.New("provider request failed")
	ErrEmptyResponse   = errors.New("provider returned an empty response")
	ErrMalformed       = errors.New("provider response is malformed")
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("provider response status %d: %s", e.StatusCode, body)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrProviderFailure
	}
}
