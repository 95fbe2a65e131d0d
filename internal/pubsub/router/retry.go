package router

import (
	"errors"
	"net"

	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/httpclient"
	"github.com/voxagent/billing/internal/logger"
)

// shouldRetry reports whether redelivering the message can succeed
func shouldRetry(logger *logger.Logger, err error) bool {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		logger.Debugw("webhook endpoint answered with an error",
			"status_code", httpErr.StatusCode,
			"retryable", httpErr.Retryable(),
		)
		return httpErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}

	// business outcomes are final, a redelivery would fail the same way
	if ierr.IsValidation(err) ||
		ierr.IsNotFound(err) ||
		ierr.IsPermissionDenied(err) ||
		ierr.IsInsufficientBalance(err) ||
		ierr.IsConfiguration(err) ||
		ierr.IsAlreadyExists(err) {
		return false
	}

	return true
}
