package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/httpclient"
	"github.com/voxagent/billing/internal/logger"
)

func TestShouldRetry(t *testing.T) {
	log := logger.NewNoopLogger()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 503", httpclient.NewError(503, nil), true},
		{"http 429", httpclient.NewError(429, nil), true},
		{"http 400", httpclient.NewError(400, nil), false},
		{"deadline", context.DeadlineExceeded, true},
		{"validation", ierr.NewError("bad").Mark(ierr.ErrValidation), false},
		{"insufficient balance", ierr.NewError("no funds").Mark(ierr.ErrInsufficientBalance), false},
		{"configuration", ierr.NewError("bad unit").Mark(ierr.ErrConfiguration), false},
		{"database", ierr.NewError("conn reset").Mark(ierr.ErrDatabase), true},
		{"unknown", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(log, tt.err))
		})
	}
}
