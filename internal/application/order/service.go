package order

import (
	"context"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/observability"
)

// Service groups the order use cases behind one handle for the transport layer.
type Service struct {
	place   application.UseCase[PlaceOrderInput, *PlaceOrderResult]
	promo   application.UseCase[ValidatePromoInput, *ValidatePromoResult]
	get     application.UseCase[GetOrderInput, *domain.Order]
	list    application.UseCase[ListOrdersInput, []*domain.Order]
	advance application.UseCase[UpdateStatusInput, *UpdateStatusResult]
}

func NewService(uow application.UnitOfWork, numbers NumberGenerator, clock Clock, tel observability.Observability) *Service {
	return &Service{
		place:   NewPlaceOrderUseCase(uow, numbers, clock, tel),
		promo:   NewValidatePromoUseCase(uow, clock, tel),
		get:     NewGetOrderUseCase(uow, tel),
		list:    NewListOrdersUseCase(uow, tel),
		advance: NewUpdateStatusUseCase(uow, tel),
	}
}

func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	return s.place.Execute(ctx, in)
}

func (s *Service) ValidatePromo(ctx context.Context, in ValidatePromoInput) (*ValidatePromoResult, error) {
	return s.promo.Execute(ctx, in)
}

func (s *Service) Get(ctx context.Context, in GetOrderInput) (*domain.Order, error) {
	return s.get.Execute(ctx, in)
}

func (s *Service) List(ctx context.Context, in ListOrdersInput) ([]*domain.Order, error) {
	return s.list.Execute(ctx, in)
}

func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*UpdateStatusResult, error) {
	return s.advance.Execute(ctx, in)
}
