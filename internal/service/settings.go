package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/cache"
	"github.com/voxagent/billing/internal/domain/settings"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// SettingsService is the read-through store for global pricing tables
type SettingsService interface {
	GetPAGRates(ctx context.Context) (settings.PAGRates, error)
	// GetMonthlyRates reads pricing_rates_dedicated or subscription_costs
	GetMonthlyRates(ctx context.Context, key string) (settings.MonthlyRates, error)
	GetS3Rates(ctx context.Context) (*settings.S3Rates, error)
	GetSetting(ctx context.Context, key string) (*settings.Setting, error)
	UpdateSetting(ctx context.Context, caller types.Caller, key string, value json.RawMessage) (*settings.Setting, error)
}

type settingsService struct {
	ServiceParams
	validators map[string]func(*settings.Setting) error
}

func NewSettingsService(params ServiceParams) SettingsService {
	return &settingsService{
		ServiceParams: params,
		validators: map[string]func(*settings.Setting) error{
			settings.KeyPricingRatesPAG: func(s *settings.Setting) error {
				var rates settings.PAGRates
				if err := s.Decode(&rates); err != nil {
					return err
				}
				return rates.Validate()
			},
			settings.KeyPricingRatesDedicated: decodeMonthlyRates,
			settings.KeySubscriptionCosts:     decodeMonthlyRates,
			settings.KeyS3Rates: func(s *settings.Setting) error {
				var rates settings.S3Rates
				if err := s.Decode(&rates); err != nil {
					return err
				}
				if rates.StorageCostPerGB != nil && rates.StorageCostPerGB.IsNegative() {
					return ierr.NewError("storage cost must not be negative").
						WithHint("Storage cost must not be negative").
						Mark(ierr.ErrConfiguration)
				}
				return nil
			},
		},
	}
}

func decodeMonthlyRates(s *settings.Setting) error {
	var rates settings.MonthlyRates
	if err := s.Decode(&rates); err != nil {
		return err
	}
	for key, rate := range rates {
		if rate.IsNegative() {
			return ierr.NewErrorf("negative monthly rate %s in %s", key, s.Key).
				WithHint("Monthly rates must not be negative").
				Mark(ierr.ErrConfiguration)
		}
	}
	return nil
}

// GetSetting returns the row for key. A missing key yields an empty row so
// callers fall through to the next pricing level.
func (s *settingsService) GetSetting(ctx context.Context, key string) (*settings.Setting, error) {
	cacheKey := cache.GenerateKey(cache.PrefixSettings, key)
	if setting, ok := cache.Lookup[*settings.Setting](ctx, s.Cache, cacheKey); ok {
		return setting, nil
	}

	setting, err := s.SettingsRepo.Get(ctx, key)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHint("Pricing settings are temporarily unavailable").
				WithReportableDetails(map[string]any{"key": key}).
				Mark(ierr.ErrExternalDependency)
		}
		setting = &settings.Setting{Key: key}
	}

	s.Cache.Set(ctx, cacheKey, setting, s.Config.Cache.TTL)
	return setting, nil
}

func (s *settingsService) GetPAGRates(ctx context.Context) (settings.PAGRates, error) {
	setting, err := s.GetSetting(ctx, settings.KeyPricingRatesPAG)
	if err != nil {
		return nil, err
	}

	rates := settings.PAGRates{}
	if err := setting.Decode(&rates); err != nil {
		return nil, err
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *settingsService) GetMonthlyRates(ctx context.Context, key string) (settings.MonthlyRates, error) {
	setting, err := s.GetSetting(ctx, key)
	if err != nil {
		return nil, err
	}

	rates := settings.MonthlyRates{}
	if err := setting.Decode(&rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *settingsService) GetS3Rates(ctx context.Context) (*settings.S3Rates, error) {
	setting, err := s.GetSetting(ctx, settings.KeyS3Rates)
	if err != nil {
		return nil, err
	}

	rates := &settings.S3Rates{}
	if err := setting.Decode(rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *settingsService) UpdateSetting(ctx context.Context, caller types.Caller, key string, value json.RawMessage) (*settings.Setting, error) {
	if err := caller.RequireGlobalSettings(); err != nil {
		return nil, err
	}

	validate, ok := s.validators[key]
	if !ok {
		return nil, ierr.NewErrorf("unknown setting key %s", key).
			WithHintf("Setting key must be one of: %v", lo.Keys(s.validators)).
			Mark(ierr.ErrValidation)
	}

	setting := &settings.Setting{
		Key:       key,
		Value:     value,
		UpdatedBy: caller.UserID,
		UpdatedAt: time.Now().UTC(),
	}
	// stored values are configuration, but here they are caller input
	if err := validate(setting); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrValidation)
	}

	if err := s.SettingsRepo.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixSettings, key))

	s.Logger.Infow("updated pricing setting",
		"key", key,
		"updated_by", caller.UserID,
	)
	return setting, nil
}
