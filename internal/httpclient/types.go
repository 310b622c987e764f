package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error response with status code information.
type HTTPError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// URL is the URL that was requested
	URL string

	// Status is the HTTP status line
	Status string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s: %s", e.StatusCode, e.URL, e.Status)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, url, status string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Status:     status,
	}
}

// RateLimited reports whether the response signalled a 429-class rate
// limit or temporary unavailability.
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsRateLimited reports whether err carries a rate-limited HTTP response.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.RateLimited()
}
