package inventory

import "context"

// Repository is transaction-scoped: row locks taken by GetForUpdate are held
// until the enclosing transaction ends.
type Repository interface {
	GetForUpdate(ctx context.Context, id int64) (*Variant, error)
	UpdateStock(ctx context.Context, id int64, stock int) error
}
