package executor

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for every response outside the 2xx range
type APIError struct {
	Method     string
	URL        string
	Status     int
	StatusText string
	Body       []byte
	// Data is the decoded body, or the raw text when it is not JSON
	Data interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.StatusText)
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an APIError
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports a 404
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsConflict reports a 409 or a 412, both meaning a concurrent modification won
func IsConflict(err error) bool {
	s := StatusOf(err)
	return s == http.StatusConflict || s == http.StatusPreconditionFailed
}

// IsMethodNotAllowed reports a 405
func IsMethodNotAllowed(err error) bool {
	return StatusOf(err) == http.StatusMethodNotAllowed
}
