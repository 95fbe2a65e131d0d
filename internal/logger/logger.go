package logger

import (
	"context"

	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// Global logger for convenience
var L *Logger

// NewLogger creates and returns a new Logger instance
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.Level = zap.NewAtomicLevelAt(levelFromConfig(cfg))

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

// NewNoopLogger returns a logger that discards everything, used by tests and scripts
func NewNoopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelFromConfig(cfg *config.Configuration) zapcore.Level {
	if cfg == nil {
		return zapcore.InfoLevel
	}
	switch cfg.Logging.Level {
	case types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelWarn:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize default logger and set it as global while also using Dependency Injection.
// Scripts use the global, everything else should take the logger as a dependency.
func init() {
	L, _ = NewLogger(config.GetDefaultConfig())
}

// WithContext returns a logger annotated with the request scoped identifiers found on ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]interface{}, 0, 6)
	if requestID := types.GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if workspaceID := types.GetWorkspaceID(ctx); workspaceID != "" {
		fields = append(fields, "workspace_id", workspaceID)
	}
	if userID := types.GetUserID(ctx); userID != "" {
		fields = append(fields, "user_id", userID)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(fields...)}
}
