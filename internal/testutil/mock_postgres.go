package testutil

import (
	"context"
	"sync"

	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

// MockPostgresClient serializes top-level transactions, which gives the
// in-memory stores the isolation that row locks give postgres. Nested calls
// join the open transaction. Writes are not rolled back on failure.
type MockPostgresClient struct {
	mu    sync.Mutex
	count int
}

var _ postgres.IClient = (*MockPostgresClient)(nil)

func NewMockPostgresClient() *MockPostgresClient {
	return &MockPostgresClient{}
}

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if postgres.InTx(ctx) {
		return fn(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++

	tx := &postgres.Tx{ID: types.GenerateUUID()}
	return fn(postgres.WithTxContext(ctx, tx))
}

// Transactions returns the number of top-level transactions opened
func (c *MockPostgresClient) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
