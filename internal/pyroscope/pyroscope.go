package pyroscope

import (
	"context"

	"github.com/grafana/pyroscope-go"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"go.uber.org/fx"
)

type Service struct {
	cfg      *config.Configuration
	logger   *logger.Logger
	profiler *pyroscope.Profiler
}

// Module provides fx options for Pyroscope
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewPyroscopeService),
		fx.Invoke(RegisterHooks),
	)
}

func NewPyroscopeService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// RegisterHooks starts the profiler with the application and stops it on shutdown
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !svc.cfg.Pyroscope.Enabled {
				svc.logger.Info("pyroscope profiling is disabled")
				return nil
			}

			profiler, err := pyroscope.Start(pyroscope.Config{
				ApplicationName:   svc.cfg.Pyroscope.ApplicationName,
				ServerAddress:     svc.cfg.Pyroscope.ServerAddress,
				BasicAuthUser:     svc.cfg.Pyroscope.BasicAuthUser,
				BasicAuthPassword: svc.cfg.Pyroscope.BasicAuthPass,
				Logger:            svc,
				ProfileTypes: []pyroscope.ProfileType{
					pyroscope.ProfileCPU,
					pyroscope.ProfileAllocObjects,
					pyroscope.ProfileInuseSpace,
					pyroscope.ProfileGoroutines,
					pyroscope.ProfileMutexCount,
				},
			})
			if err != nil {
				svc.logger.Errorw("failed to initialize pyroscope", "error", err)
				return err
			}

			svc.profiler = profiler
			svc.logger.Infow("pyroscope profiling initialized",
				"application_name", svc.cfg.Pyroscope.ApplicationName,
				"server_address", svc.cfg.Pyroscope.ServerAddress,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if svc.profiler == nil {
				return nil
			}
			return svc.profiler.Stop()
		},
	})
}

// Debugf, Infof and Errorf satisfy pyroscope.Logger
func (s *Service) Debugf(format string, args ...interface{}) {
	s.logger.Debugf(format, args...)
}

func (s *Service) Infof(format string, args ...interface{}) {
	s.logger.Infof(format, args...)
}

func (s *Service) Errorf(format string, args ...interface{}) {
	s.logger.Errorf(format, args...)
}
