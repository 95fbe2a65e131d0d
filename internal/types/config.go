package types

import (
	"github.com/samber/lo"
	ierr "github.com/voxagent/billing/internal/errors"
)

// RunMode selects which parts of the process start: the HTTP API, the usage
// consumer, or both
type RunMode string

const (
	ModeLocal    RunMode = "local"
	ModeAPI      RunMode = "api"
	ModeConsumer RunMode = "consumer"
	// Lambda modes run a single invocation handler instead of long lived servers
	ModeAWSLambdaAPI      RunMode = "aws_lambda_api"
	ModeAWSLambdaConsumer RunMode = "aws_lambda_consumer"
)

func (m RunMode) Validate() error {
	allowed := []RunMode{ModeLocal, ModeAPI, ModeConsumer, ModeAWSLambdaAPI, ModeAWSLambdaConsumer}
	if !lo.Contains(allowed, m) {
		return ierr.NewErrorf("invalid deployment mode: %s", m).
			WithHintf("Deployment mode must be one of: %v", allowed).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// ConsumesUsage reports whether the mode subscribes to the usage topic itself.
// The lambda consumer is handed its records by the Kafka trigger instead.
func (m RunMode) ConsumesUsage() bool {
	return m == ModeLocal || m == ModeConsumer
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubType is the queue webhook events travel through before delivery
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
	KafkaPubSub  PubSubType = "kafka"
)
