package settings

import "context"

// Repository reads and writes settings_global rows
type Repository interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (*Setting, error)
	Upsert(ctx context.Context, setting *Setting) error
}
