package payment

import "context"

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	GetByReferenceForUpdate(ctx context.Context, reference string) (*Payment, error)
	GetByProviderReferenceForUpdate(ctx context.Context, provider Provider, providerRef string) (*Payment, error)
	// Update writes status, provider reference and failure reason.
	Update(ctx context.Context, p *Payment) error
}
