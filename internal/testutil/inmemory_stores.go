package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/domain/provider"
	"github.com/voxagent/billing/internal/domain/settings"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/types"
)

func refKey(ref billable.Ref) string {
	return string(ref.Type) + "/" + ref.ID
}

// InMemoryBillableStore implements billable.Repository
type InMemoryBillableStore struct {
	*InMemoryStore[*billable.Service]
}

var _ billable.Repository = (*InMemoryBillableStore)(nil)

func NewInMemoryBillableStore() *InMemoryBillableStore {
	return &InMemoryBillableStore{InMemoryStore: NewInMemoryStore[*billable.Service]()}
}

func (s *InMemoryBillableStore) Create(ctx context.Context, svc *billable.Service) error {
	return s.InMemoryStore.Create(ctx, refKey(svc.Ref()), clone(svc))
}

func (s *InMemoryBillableStore) Get(ctx context.Context, ref billable.Ref) (*billable.Service, error) {
	svc, err := s.InMemoryStore.Get(ctx, refKey(ref))
	if err != nil {
		return nil, err
	}
	return clone(svc), nil
}

func (s *InMemoryBillableStore) ListActiveInPeriod(ctx context.Context, filter *billable.ServiceFilter) ([]*billable.Service, error) {
	services, err := s.InMemoryStore.List(ctx, filter, func(_ context.Context, svc *billable.Service, f interface{}) bool {
		filter := f.(*billable.ServiceFilter)
		if !svc.CreatedAt.Before(filter.ActiveTo) {
			return false
		}
		if svc.DeactivatedAt != nil && svc.DeactivatedAt.Before(filter.ActiveFrom) {
			return false
		}
		if filter.WorkspaceID != "" && svc.WorkspaceID != filter.WorkspaceID {
			return false
		}
		return len(filter.ServiceTypes) == 0 || lo.Contains(filter.ServiceTypes, svc.ServiceType)
	}, func(i, j *billable.Service) bool {
		if i.WorkspaceID != j.WorkspaceID {
			return i.WorkspaceID < j.WorkspaceID
		}
		if !i.CreatedAt.Equal(j.CreatedAt) {
			return i.CreatedAt.Before(j.CreatedAt)
		}
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(services, func(svc *billable.Service, _ int) *billable.Service { return clone(svc) }), nil
}

func (s *InMemoryBillableStore) UpdateCostOverrides(ctx context.Context, ref billable.Ref, overrides billable.CostOverrides) error {
	svc, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	svc.CostOverrides = types.NewJSONColumn(overrides)
	svc.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, refKey(ref), svc)
}

// InMemoryCostConfigStore implements costconfig.Repository
type InMemoryCostConfigStore struct {
	*InMemoryStore[*costconfig.CostConfiguration]
}

var _ costconfig.Repository = (*InMemoryCostConfigStore)(nil)

func NewInMemoryCostConfigStore() *InMemoryCostConfigStore {
	return &InMemoryCostConfigStore{InMemoryStore: NewInMemoryStore[*costconfig.CostConfiguration]()}
}

func (s *InMemoryCostConfigStore) Create(ctx context.Context, cfg *costconfig.CostConfiguration) error {
	return s.InMemoryStore.Create(ctx, cfg.ID, clone(cfg))
}

func (s *InMemoryCostConfigStore) Get(ctx context.Context, id string) (*costconfig.CostConfiguration, error) {
	cfg, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return clone(cfg), nil
}

func (s *InMemoryCostConfigStore) ListForService(ctx context.Context, workspaceID string, serviceType types.ServiceType, serviceID string) ([]*costconfig.CostConfiguration, error) {
	configs, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, cfg *costconfig.CostConfiguration, _ interface{}) bool {
		return cfg.WorkspaceID == workspaceID &&
			cfg.ServiceType == serviceType &&
			cfg.IsActive &&
			(cfg.ServiceID == nil || *cfg.ServiceID == serviceID)
	}, nil)
	if err != nil {
		return nil, err
	}
	return lo.Map(configs, func(cfg *costconfig.CostConfiguration, _ int) *costconfig.CostConfiguration { return clone(cfg) }), nil
}

func (s *InMemoryCostConfigStore) List(ctx context.Context, filter *costconfig.Filter) ([]*costconfig.CostConfiguration, error) {
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	desc := filter.GetOrder() == types.OrderDesc
	return s.InMemoryStore.List(ctx, filter, func(_ context.Context, cfg *costconfig.CostConfiguration, f interface{}) bool {
		filter := f.(*costconfig.Filter)
		if cfg.WorkspaceID != filter.WorkspaceID {
			return false
		}
		if filter.ServiceType != "" && cfg.ServiceType != filter.ServiceType {
			return false
		}
		if filter.ServiceID != "" && lo.FromPtr(cfg.ServiceID) != filter.ServiceID {
			return false
		}
		return !filter.ActiveOnly || cfg.IsActive
	}, func(i, j *costconfig.CostConfiguration) bool {
		if desc {
			return i.CreatedAt.After(j.CreatedAt)
		}
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

func (s *InMemoryCostConfigStore) Deactivate(ctx context.Context, id string) error {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	cfg.IsActive = false
	cfg.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, cfg)
}

// InMemorySettingsStore implements settings.Repository
type InMemorySettingsStore struct {
	*InMemoryStore[*settings.Setting]
}

var _ settings.Repository = (*InMemorySettingsStore)(nil)

func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{InMemoryStore: NewInMemoryStore[*settings.Setting]()}
}

func (s *InMemorySettingsStore) Get(ctx context.Context, key string) (*settings.Setting, error) {
	setting, err := s.InMemoryStore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return clone(setting), nil
}

func (s *InMemorySettingsStore) Upsert(ctx context.Context, setting *settings.Setting) error {
	if _, err := s.InMemoryStore.Get(ctx, setting.Key); err == nil {
		return s.InMemoryStore.Update(ctx, setting.Key, clone(setting))
	}
	return s.InMemoryStore.Create(ctx, setting.Key, clone(setting))
}

// InMemoryProviderStore implements provider.Repository
type InMemoryProviderStore struct {
	*InMemoryStore[*provider.Provider]
}

var _ provider.Repository = (*InMemoryProviderStore)(nil)

func NewInMemoryProviderStore() *InMemoryProviderStore {
	return &InMemoryProviderStore{InMemoryStore: NewInMemoryStore[*provider.Provider]()}
}

// Add stores a provider fixture
func (s *InMemoryProviderStore) Add(p *provider.Provider) {
	_ = s.InMemoryStore.Create(context.Background(), p.ID, clone(p))
}

// Provider builds a provider fixture priced per the first allowed unit of the resource
func Provider(id string, resource types.Resource, active bool) *provider.Provider {
	unit := map[types.Resource]types.PriceUnit{
		types.ResourceSTT:       types.PriceUnitMinute,
		types.ResourceTTS:       types.PriceUnitCharacter,
		types.ResourceLLM:       types.PriceUnitToken,
		types.ResourceEmbedding: types.PriceUnitToken,
		types.ResourceStorage:   types.PriceUnitGB,
	}[resource]
	return &provider.Provider{
		ID:          id,
		Name:        id,
		Type:        resource,
		Unit:        unit,
		CostPerUnit: decimal.RequireFromString("0.01"),
		IsActive:    active,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func (s *InMemoryProviderStore) Get(ctx context.Context, id string) (*provider.Provider, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (s *InMemoryProviderStore) List(ctx context.Context, activeOnly bool) ([]*provider.Provider, error) {
	return s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *provider.Provider, _ interface{}) bool {
		return !activeOnly || p.IsActive
	}, func(i, j *provider.Provider) bool {
		return i.Name < j.Name
	})
}

// InMemoryUsageStore implements usage.Repository. Records are keyed by event
// id, which mirrors the unique index on usage_records.event_id.
type InMemoryUsageStore struct {
	records *InMemoryStore[*usage.Record]

	mu       sync.Mutex
	counters map[string]decimal.Decimal
}

var _ usage.Repository = (*InMemoryUsageStore)(nil)

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		records:  NewInMemoryStore[*usage.Record](),
		counters: make(map[string]decimal.Decimal),
	}
}

func counterKey(serviceID string, r types.Resource, periodStart time.Time) string {
	return fmt.Sprintf("%s/%s/%s", serviceID, r, periodStart.UTC().Format(time.DateOnly))
}

func (s *InMemoryUsageStore) Create(ctx context.Context, rec *usage.Record) error {
	return s.records.Create(ctx, rec.EventID, clone(rec))
}

func (s *InMemoryUsageStore) GetByEventID(ctx context.Context, eventID string) (*usage.Record, error) {
	rec, err := s.records.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return clone(rec), nil
}

func (s *InMemoryUsageStore) SumTotalCost(ctx context.Context, workspaceID, serviceID string, from, to time.Time) (decimal.Decimal, error) {
	records, err := s.records.List(ctx, nil, func(_ context.Context, rec *usage.Record, _ interface{}) bool {
		return rec.WorkspaceID == workspaceID &&
			rec.ServiceID == serviceID &&
			!rec.OccurredAt.Before(from) &&
			rec.OccurredAt.Before(to)
	}, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return lo.Reduce(records, func(sum decimal.Decimal, rec *usage.Record, _ int) decimal.Decimal {
		return sum.Add(rec.TotalCost)
	}, decimal.Zero), nil
}

func (s *InMemoryUsageStore) GetAllowanceConsumed(ctx context.Context, serviceID string, r types.Resource, periodStart time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counterKey(serviceID, r, periodStart)], nil
}

func (s *InMemoryUsageStore) AddAllowanceConsumed(ctx context.Context, c *usage.AllowanceCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey(c.ServiceID, c.Resource, c.PeriodStart)
	s.counters[key] = s.counters[key].Add(c.Consumed)
	return nil
}

// Len returns the number of stored usage records
func (s *InMemoryUsageStore) Len() int {
	n, _ := s.records.Count(context.Background(), nil, nil)
	return n
}

func (s *InMemoryUsageStore) Clear() {
	s.records.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]decimal.Decimal)
}

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

var _ invoice.Repository = (*InMemoryInvoiceStore)(nil)

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{InMemoryStore: NewInMemoryStore[*invoice.Invoice]()}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	c := clone(inv)
	c.LineItems = lo.Map(inv.LineItems, func(item *invoice.LineItem, _ int) *invoice.LineItem { return clone(item) })
	return c
}

func (s *InMemoryInvoiceStore) GetCurrent(ctx context.Context, workspaceID string, year, month int) (*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.WorkspaceID == workspaceID &&
			inv.Year == year &&
			inv.Month == month &&
			inv.Status == types.InvoiceStatusGenerated
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, notFound(fmt.Sprintf("%s/%04d-%02d", workspaceID, year, month))
	}
	return copyInvoice(invoices[0]), nil
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.GetCurrent(ctx, inv.WorkspaceID, inv.Year, inv.Month); err == nil {
		// unique index on the current version of a scope and month
		return alreadyExists(inv.ID)
	}
	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) MarkSuperseded(ctx context.Context, id string) error {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != types.InvoiceStatusGenerated {
		return notFound(id)
	}
	c := copyInvoice(inv)
	c.Status = types.InvoiceStatusSuperseded
	c.SupersededAt = lo.ToPtr(time.Now().UTC())
	return s.InMemoryStore.Update(ctx, id, c)
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	desc := filter.GetOrder() == types.OrderDesc
	invoices, err := s.InMemoryStore.List(ctx, filter, func(_ context.Context, inv *invoice.Invoice, f interface{}) bool {
		filter := f.(*invoice.Filter)
		if filter.Year > 0 && inv.Year != filter.Year {
			return false
		}
		if filter.Month > 0 && inv.Month != filter.Month {
			return false
		}
		if filter.WorkspaceID != "" && inv.WorkspaceID != filter.WorkspaceID {
			return false
		}
		if filter.WorkspaceIDs != nil && !lo.Contains(filter.WorkspaceIDs, inv.WorkspaceID) {
			return false
		}
		return filter.IncludeHistoric || inv.Status == types.InvoiceStatusGenerated
	}, func(i, j *invoice.Invoice) bool {
		if desc {
			return i.GeneratedAt.After(j.GeneratedAt)
		}
		return i.GeneratedAt.Before(j.GeneratedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(invoices, func(inv *invoice.Invoice, _ int) *invoice.Invoice { return copyInvoice(inv) }), nil
}
