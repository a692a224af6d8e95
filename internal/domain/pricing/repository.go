package pricing

import "context"

type PromoRepository interface {
	GetByCode(ctx context.Context, code string) (*PromoCode, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*PromoCode, error)
	UpdateUsage(ctx context.Context, id int64, usedCount int) error
}
