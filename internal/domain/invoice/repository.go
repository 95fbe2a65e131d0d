package invoice

import "context"

type Repository interface {
	// GetCurrent returns the non-superseded invoice for the scope, ErrNotFound when none exists
	GetCurrent(ctx context.Context, workspaceID string, year, month int) (*Invoice, error)
	// Create persists the header and its line items
	Create(ctx context.Context, inv *Invoice) error
	MarkSuperseded(ctx context.Context, id string) error
	List(ctx context.Context, filter *Filter) ([]*Invoice, error)
}
