package middleware

import (
	"github.com/gin-gonic/gin"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
)

// ErrorHandler renders the last error attached by a handler. Only the hint and the
// reportable details reach the client; the full chain is logged server-side.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		if status >= 500 {
			log.WithContext(c.Request.Context()).Errorw("request failed",
				"error", err,
				"status", status,
				"path", c.Request.URL.Path,
			)
		}

		c.JSON(status, ierr.ErrorResponse{
			Error:   ierr.DisplayMessage(err),
			Details: ierr.ReportableDetails(err),
		})
	}
}
