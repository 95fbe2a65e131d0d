package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/payment"
	"github.com/voxagent/billing/internal/storage"
	"github.com/voxagent/billing/internal/types"
)

// FakeGateway records charges and succeeds unless Err is set
type FakeGateway struct {
	mu       sync.Mutex
	Err      error
	Charges  []payment.ChargeRequest
	payments map[string]*payment.Payment
}

var _ payment.Gateway = (*FakeGateway)(nil)

func (g *FakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, g.Err
	}
	g.Charges = append(g.Charges, req)
	return &payment.ChargeResult{
		PaymentID: types.GenerateUUIDWithPrefix("pi"),
		Status:    "succeeded",
	}, nil
}

// Declined makes every later charge fail the way a declined card does
func (g *FakeGateway) Declined() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Err = ierr.NewError("card declined").
		WithHint("The saved payment method was declined").
		Mark(ierr.ErrExternalDependency)
}

// AddPayment makes a payment visible to GetPayment
func (g *FakeGateway) AddPayment(p *payment.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payments == nil {
		g.payments = make(map[string]*payment.Payment)
	}
	g.payments[p.ID] = p
}

func (g *FakeGateway) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return nil, ierr.NewErrorf("payment %s not found", paymentID).
			WithHint("Payment not found").
			Mark(ierr.ErrNotFound)
	}
	return p, nil
}

func (g *FakeGateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Charges)
}

func (g *FakeGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Err = nil
	g.Charges = nil
	g.payments = nil
}

// FakeStorageReader serves stored bytes per workspace. Unknown workspaces
// behave like an unreachable bucket.
type FakeStorageReader struct {
	mu    sync.RWMutex
	bytes map[string]decimal.Decimal
}

var _ storage.UsageReader = (*FakeStorageReader)(nil)

func NewFakeStorageReader() *FakeStorageReader {
	return &FakeStorageReader{bytes: make(map[string]decimal.Decimal)}
}

func (r *FakeStorageReader) Set(workspaceID string, bytes decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes[workspaceID] = bytes
}

func (r *FakeStorageReader) WorkspaceStorageBytes(ctx context.Context, workspaceID string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bytes[workspaceID]
	if !ok {
		return decimal.Zero, ierr.NewErrorf("no storage usage for workspace %s", workspaceID).
			WithHint("Storage usage is unavailable").
			Mark(ierr.ErrExternalDependency)
	}
	return b, nil
}

func (r *FakeStorageReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes = make(map[string]decimal.Decimal)
}
