package httpclient

import (
	"fmt"
	"net/http"

	ierr "github.com/voxagent/billing/internal/errors"
)

// maxErrorBody caps how much of a failed response is kept on the error
const maxErrorBody = 512

// Error is a non-2xx answer from a webhook endpoint or collaborator
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("http client error: status %d", e.StatusCode)
}

// Is lets ierr.IsHTTPClient match without wrapping
func (e *Error) Is(target error) bool {
	return target == ierr.ErrHTTPClient
}

// Retryable reports whether the endpoint may accept the same request later
func (e *Error) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func NewError(statusCode int, response []byte) *Error {
	if len(response) > maxErrorBody {
		response = response[:maxErrorBody]
	}
	return &Error{StatusCode: statusCode, Response: response}
}

// IsHTTPError unwraps err down to an *Error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if ierr.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
