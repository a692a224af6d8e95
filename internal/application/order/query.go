package order

import (
	"context"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseGetOrder   = "order.get"
	useCaseListOrders = "order.list"
)

type GetOrderInput struct {
	Actor   application.Actor
	OrderID int64
}

// GetOrderUseCase reads one order. Orders the actor may not see are reported as
// not found so their existence is not leaked.
type GetOrderUseCase struct {
	uow application.UnitOfWork
	in  application.Instrument
}

func NewGetOrderUseCase(uow application.UnitOfWork, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{uow: uow, in: application.NewInstrument(tel, orderService)}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, cmd GetOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseGetOrder, "GetOrder",
		attribute.Int64("order.id", cmd.OrderID),
	)
	defer func() { run.End(err) }()

	var o *domain.Order
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		got, txErr := tx.Orders().Get(ctx, cmd.OrderID)
		o = got
		return txErr
	})
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}
	if !cmd.Actor.CanSee(o.UserID) {
		run.Fail("ORDER_NOT_VISIBLE")
		return nil, ErrNotFound
	}
	return o, nil
}

type ListOrdersInput struct {
	Actor application.Actor
}

// ListOrdersUseCase returns the actor's own orders, newest first.
type ListOrdersUseCase struct {
	uow application.UnitOfWork
	in  application.Instrument
}

func NewListOrdersUseCase(uow application.UnitOfWork, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{uow: uow, in: application.NewInstrument(tel, orderService)}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []*domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseListOrders, "ListOrders",
		attribute.Int64("order.user_id", cmd.Actor.UserID),
	)
	defer func() { run.End(err) }()

	if cmd.Actor.UserID <= 0 {
		run.Fail("USER_REQUIRED")
		return nil, application.NewValidation("user_id", "authenticated user is required")
	}

	var orders []*domain.Order
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		got, txErr := tx.Orders().ListByUser(ctx, cmd.Actor.UserID)
		orders = got
		return txErr
	})
	if err != nil {
		run.Fail("ORDER_LIST_FAILED")
		return nil, wrapRepositoryError(err)
	}
	run.With(observability.F("count", len(orders)))
	return orders, nil
}
