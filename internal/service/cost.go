package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/proration"
	"github.com/voxagent/billing/internal/domain/usage"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/types"
)

var half = decimal.NewFromFloat(0.5)

// CostService prices usage under the six cost modes
type CostService interface {
	CalculateCost(ctx context.Context, req *dto.CalculateCostRequest) (*dto.CostBreakdown, error)
	// CalculateForService prices usage for a service the caller already loaded
	CalculateForService(ctx context.Context, svc *billable.Service, req *dto.CalculateCostRequest) (*dto.CostBreakdown, error)
}

type costService struct {
	ServiceParams
	pricing PricingService
}

func NewCostService(params ServiceParams, pricingService PricingService) CostService {
	return &costService{
		ServiceParams: params,
		pricing:       pricingService,
	}
}

// calculation carries everything one mode calculator needs
type calculation struct {
	svc    *billable.Service
	active *costconfig.CostConfiguration
	usage  *usage.Metrics
	at     time.Time
}

func (s *costService) CalculateCost(ctx context.Context, req *dto.CalculateCostRequest) (*dto.CostBreakdown, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.BillableRepo.Get(ctx, req.Ref())
	if err != nil {
		return nil, err
	}
	if svc.WorkspaceID != req.WorkspaceID {
		return nil, serviceNotInWorkspace(svc.ID, req.WorkspaceID)
	}
	return s.CalculateForService(ctx, svc, req)
}

func (s *costService) CalculateForService(ctx context.Context, svc *billable.Service, req *dto.CalculateCostRequest) (*dto.CostBreakdown, error) {
	at := time.Now().UTC()
	if req.At != nil {
		at = req.At.UTC()
	}

	active, err := s.pricing.ActiveConfiguration(ctx, svc, at)
	if err != nil {
		return nil, err
	}

	mode := req.Mode()
	if mode == "" {
		mode = types.CostModePAG
		if active != nil {
			mode = active.CostMode
		}
	}

	result, err := s.calculate(ctx, mode, &calculation{
		svc:    svc,
		active: active,
		usage:  &req.Usage,
		at:     at,
	})
	metrics.CostCalculationsTotal.WithLabelValues(string(mode), metrics.Outcome(err)).Inc()
	if err != nil {
		s.Logger.Debugw("cost calculation failed",
			"workspace_id", svc.WorkspaceID,
			"service_id", svc.ID,
			"mode", mode,
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

func (s *costService) calculate(ctx context.Context, mode types.CostMode, c *calculation) (*dto.CostBreakdown, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if err := c.usage.Validate(); err != nil {
		return nil, err
	}

	if c.usage.MeasureStorage && c.usage.StorageBytes == nil {
		bytes, err := s.StorageReader.WorkspaceStorageBytes(ctx, c.svc.WorkspaceID)
		if err != nil {
			return nil, err
		}
		c.usage.StorageBytes = &bytes
	}

	if err := s.checkUsageLimits(ctx, c); err != nil {
		return nil, err
	}

	result := &dto.CostBreakdown{
		Mode:         mode,
		Breakdown:    []dto.BreakdownLine{},
		CalculatedAt: c.at,
	}
	if c.active != nil {
		result.ConfigID = lo.ToPtr(c.active.ID)
	}

	var err error
	switch mode {
	case types.CostModePAG:
		err = s.pag(ctx, c, result, true)
	case types.CostModeDedicated:
		err = s.dedicated(ctx, c, result)
	case types.CostModeInjection:
		err = s.injection(ctx, c, result)
	case types.CostModeFixed:
		err = s.fixed(ctx, c, result)
	case types.CostModeDynamic:
		err = s.dynamic(ctx, c, result)
	case types.CostModeHybrid:
		err = s.hybrid(ctx, c, result)
	}
	if err != nil {
		return nil, err
	}

	if c.active != nil {
		if caps := c.active.CostCaps.Data; caps != nil && caps.MaxTotal != nil &&
			result.Costs.TotalCost.GreaterThan(*caps.MaxTotal) {
			result.Costs.TotalCost = *caps.MaxTotal
			result.Capped = true
		}
	}

	result.DisplayTotal = dto.DisplayAmount(result.Costs.TotalCost, s.Config.Billing.DisplayPrecision)
	return result, nil
}

// pag sums unit price times quantity over every resource present in the usage
func (s *costService) pag(ctx context.Context, c *calculation, result *dto.CostBreakdown, requireUsage bool) error {
	if requireUsage && c.usage.IsEmpty() {
		return missingUsageData("usage contains no metered resource", nil)
	}

	for _, r := range types.Resources {
		if !c.usage.HasResource(r) {
			continue
		}
		price, err := s.pricing.ResolvePriceFor(ctx, c.svc, c.active, r)
		if err != nil {
			return err
		}
		qty, err := c.usage.QuantityIn(r, price.Unit)
		if err != nil {
			return err
		}

		cost := qty.Mul(price.UnitPrice)
		result.Costs.AddResource(r, cost)
		result.Costs.TotalCost = result.Costs.TotalCost.Add(cost)
		result.Breakdown = append(result.Breakdown, priceLine(price, "usage", qty, cost))
	}
	return nil
}

func (s *costService) dedicated(ctx context.Context, c *calculation, result *dto.CostBreakdown) error {
	if c.usage.PeriodStart == nil {
		return missingUsageData("period_start is required for dedicated pricing", map[string]any{"field": "period_start"})
	}

	rate, err := s.pricing.DedicatedRateFor(ctx, c.svc)
	if err != nil {
		return err
	}

	periodStart := c.usage.PeriodStart.UTC()
	prorata, err := s.Proration.Calculate(ctx, proration.Params{
		Year:        periodStart.Year(),
		Month:       periodStart.Month(),
		ActiveFrom:  c.svc.CreatedAt,
		ActiveUntil: c.svc.DeactivatedAt,
		Now:         c.at,
	})
	if err != nil {
		return err
	}

	cost := prorata.Apply(rate.Amount)
	result.Costs.DedicatedCost = result.Costs.DedicatedCost.Add(cost)
	result.Costs.TotalCost = result.Costs.TotalCost.Add(cost)
	result.Prorata = lo.ToPtr(prorata.Ratio)
	result.Breakdown = append(result.Breakdown, dto.BreakdownLine{
		Component: "dedicated",
		Quantity:  decimal.NewFromInt(int64(prorata.ActiveDays)),
		UnitPrice: rate.Amount,
		Source:    rate.Source,
		Cost:      cost,
	})
	return nil
}

// injection scales a base mode cost and records the difference as injected cost
func (s *costService) injection(ctx context.Context, c *calculation, result *dto.CostBreakdown) error {
	cfg, err := requireConfig(c.active, types.CostModeInjection, func(cc *costconfig.CostConfiguration) *costconfig.InjectionConfig {
		return cc.Injection.Data
	})
	if err != nil {
		return err
	}

	switch cfg.BaseMode {
	case types.CostModeDedicated:
		err = s.dedicated(ctx, c, result)
	default:
		err = s.pag(ctx, c, result, true)
	}
	if err != nil {
		return err
	}

	base := result.Costs.TotalCost
	total := base.Mul(cfg.Multiplier)
	result.Costs.InjectionCost = total.Sub(base)
	result.Costs.TotalCost = total
	result.InjectionTarget = &dto.InjectionTarget{
		ServiceType: cfg.TargetServiceType,
		ServiceID:   cfg.TargetServiceID,
	}
	result.Breakdown = append(result.Breakdown, dto.BreakdownLine{
		Component: "injection",
		Quantity:  cfg.Multiplier,
		UnitPrice: base,
		Cost:      result.Costs.InjectionCost,
	})
	return nil
}

// fixed charges the period fee plus overage beyond the monthly allowances.
// Consumed allowance is read here and advanced by the usage recorder.
func (s *costService) fixed(ctx context.Context, c *calculation, result *dto.CostBreakdown) error {
	cfg, err := requireConfig(c.active, types.CostModeFixed, func(cc *costconfig.CostConfiguration) *costconfig.FixedCostConfig {
		return cc.Fixed.Data
	})
	if err != nil {
		return err
	}

	anchor := c.at
	if c.usage.PeriodStart != nil {
		anchor = c.usage.PeriodStart.UTC()
	}
	periodStart, _ := proration.MonthRange(anchor.Year(), anchor.Month(), time.UTC)

	result.Costs.FixedCost = cfg.PeriodCost
	result.Costs.TotalCost = cfg.PeriodCost
	result.Breakdown = append(result.Breakdown, dto.BreakdownLine{
		Component: "fixed",
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: cfg.PeriodCost,
		Source:    types.PriceSourceCostConfiguration,
		Cost:      cfg.PeriodCost,
	})

	for _, r := range types.Resources {
		if !c.usage.HasResource(r) {
			continue
		}
		price, err := s.pricing.ResolvePriceFor(ctx, c.svc, c.active, r)
		if err != nil {
			return err
		}
		qty, err := c.usage.QuantityIn(r, price.Unit)
		if err != nil {
			return err
		}

		excess := qty
		if allowance, ok := cfg.Allowances[r]; ok {
			consumed, err := s.UsageRepo.GetAllowanceConsumed(ctx, c.svc.ID, r, periodStart)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Allowance counters are temporarily unavailable").
					Mark(ierr.ErrExternalDependency)
			}
			remaining := decimal.Max(allowance.Sub(consumed), decimal.Zero)
			covered := decimal.Min(qty, remaining)
			excess = qty.Sub(covered)
			if covered.IsPositive() {
				if result.AllowanceUsed == nil {
					result.AllowanceUsed = map[types.Resource]decimal.Decimal{}
				}
				result.AllowanceUsed[r] = covered
			}
		}

		if !excess.IsPositive() {
			continue
		}
		cost := excess.Mul(price.UnitPrice)
		result.Costs.OverageCost = result.Costs.OverageCost.Add(cost)
		result.Costs.TotalCost = result.Costs.TotalCost.Add(cost)
		result.Breakdown = append(result.Breakdown, priceLine(price, "overage", excess, cost))
	}
	return nil
}

// dynamic prices one resource with progressive marginal tiers
func (s *costService) dynamic(ctx context.Context, c *calculation, result *dto.CostBreakdown) error {
	cfg, err := requireConfig(c.active, types.CostModeDynamic, func(cc *costconfig.CostConfiguration) *costconfig.DynamicCostConfig {
		return cc.Dynamic.Data
	})
	if err != nil {
		return err
	}

	unit := cfg.Unit
	if unit == "" {
		unit = defaultRates[cfg.Resource].Unit
	}
	qty, err := c.usage.QuantityIn(cfg.Resource, unit)
	if err != nil {
		return err
	}

	cost := TieredCost(qty, cfg.Tiers)
	result.Costs.AddResource(cfg.Resource, cost)
	result.Costs.TotalCost = result.Costs.TotalCost.Add(cost)
	result.Breakdown = append(result.Breakdown, dto.BreakdownLine{
		Resource:  cfg.Resource,
		Component: "tiered",
		Quantity:  qty,
		Unit:      unit,
		Source:    types.PriceSourceCostConfiguration,
		Cost:      cost,
	})
	return nil
}

// TieredCost applies tiers marginally. Quantity beyond a bounded last tier keeps its rate.
func TieredCost(qty decimal.Decimal, tiers []costconfig.Tier) decimal.Decimal {
	total := decimal.Zero
	prev := decimal.Zero
	for i, tier := range tiers {
		if !qty.GreaterThan(prev) {
			break
		}
		upper := qty
		if tier.UpTo != nil && i != len(tiers)-1 {
			upper = decimal.Min(qty, *tier.UpTo)
		}
		total = total.Add(upper.Sub(prev).Mul(tier.Rate))
		prev = upper
	}
	return total
}

// hybrid averages pag and dedicated pricing. hybrid_config is not read yet,
// the provider mix it describes has no agreed weighting.
func (s *costService) hybrid(ctx context.Context, c *calculation, result *dto.CostBreakdown) error {
	if err := s.pag(ctx, c, result, false); err != nil {
		return err
	}
	if err := s.dedicated(ctx, c, result); err != nil {
		return err
	}
	result.Costs = result.Costs.Scale(half)
	return nil
}

// checkUsageLimits rejects usage above the configured maximum, measured in the resolved price unit
func (s *costService) checkUsageLimits(ctx context.Context, c *calculation) error {
	if c.active == nil {
		return nil
	}
	for r, max := range c.active.UsageLimits.Data {
		if !c.usage.HasResource(r) {
			continue
		}
		price, err := s.pricing.ResolvePriceFor(ctx, c.svc, c.active, r)
		if err != nil {
			return err
		}
		qty, err := c.usage.QuantityIn(r, price.Unit)
		if err != nil {
			return err
		}
		if qty.GreaterThan(max) {
			return ierr.NewErrorf("%s usage %s exceeds limit %s", r, qty, max).
				WithHintf("Usage limit exceeded for %s", r).
				WithReportableDetails(map[string]any{
					"error_kind": types.ErrorKindUsageLimitExceeded,
					"resource":   r,
					"limit":      max.String(),
					"quantity":   qty.String(),
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func requireConfig[T any](active *costconfig.CostConfiguration, mode types.CostMode, pick func(*costconfig.CostConfiguration) *T) (*T, error) {
	if active == nil || active.CostMode != mode || pick(active) == nil {
		return nil, ierr.NewErrorf("no active %s configuration", mode).
			WithHintf("No active %s cost configuration exists for this service", mode).
			WithReportableDetails(map[string]any{"cost_mode": mode}).
			Mark(ierr.ErrValidation)
	}
	return pick(active), nil
}

func priceLine(price *ResolvedPrice, component string, qty, cost decimal.Decimal) dto.BreakdownLine {
	return dto.BreakdownLine{
		Resource:   price.Resource,
		Component:  component,
		Quantity:   qty,
		Unit:       price.Unit,
		UnitPrice:  price.UnitPrice,
		Source:     price.Source,
		ProviderID: price.ProviderID,
		Cost:       cost,
	}
}

func missingUsageData(msg string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["error_kind"] = types.ErrorKindMissingUsageData
	return ierr.NewError(msg).
		WithHint("Usage data is missing for this calculation").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}

// serviceNotInWorkspace hides services of other workspaces behind a not found
func serviceNotInWorkspace(serviceID, workspaceID string) error {
	return ierr.NewErrorf("service %s does not belong to workspace %s", serviceID, workspaceID).
		WithHint("Service not found").
		WithReportableDetails(map[string]any{"service_id": serviceID}).
		Mark(ierr.ErrNotFound)
}
