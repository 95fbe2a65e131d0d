package v1

import (
	"github.com/gin-gonic/gin"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// callerFrom returns the identity the auth middleware stored on the request
func callerFrom(c *gin.Context) types.Caller {
	return types.GetCaller(c.Request.Context())
}

func invalidRequest(err error) error {
	return ierr.WithError(err).
		WithHint("Invalid request format").
		Mark(ierr.ErrValidation)
}

func requiredParam(name string) error {
	return ierr.NewErrorf("%s is required", name).
		WithHintf("%s is required", name).
		Mark(ierr.ErrValidation)
}
