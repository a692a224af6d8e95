package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseUpdateStatus = "order.update_status"

type UpdateStatusInput struct {
	Actor          application.Actor
	OrderID        int64
	Status         string
	TrackingNumber string
}

type UpdateStatusResult struct {
	Order   *domain.Order
	Changed bool
}

// UpdateStatusUseCase moves an order through fulfillment. Staff only.
type UpdateStatusUseCase struct {
	uow application.UnitOfWork
	in  application.Instrument
}

func NewUpdateStatusUseCase(uow application.UnitOfWork, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{uow: uow, in: application.NewInstrument(tel, orderService)}
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *UpdateStatusResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseUpdateStatus, "UpdateOrderStatus",
		attribute.Int64("order.id", cmd.OrderID),
		attribute.String("order.target_status", cmd.Status),
	)
	defer func() { run.End(err) }()

	if !cmd.Actor.Staff {
		run.Fail("FORBIDDEN")
		return nil, application.ErrForbidden
	}
	target, ok := domain.ParseStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !ok {
		run.Fail("STATUS_INVALID")
		return nil, application.NewValidation("status", fmt.Sprintf("unknown status %q", cmd.Status))
	}

	res := &UpdateStatusResult{}
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		o, txErr := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if txErr != nil {
			return wrapRepositoryError(txErr)
		}
		from := o.Status
		changed, txErr := o.Advance(target, strings.TrimSpace(cmd.TrackingNumber))
		if txErr != nil {
			return txErr
		}
		res.Order, res.Changed = o, changed
		if !changed {
			return nil
		}
		if txErr := tx.Orders().Update(ctx, o); txErr != nil {
			return wrapRepositoryError(txErr)
		}
		return tx.Outbox().Append(ctx, domain.NewOrderStatusChangedEvent(o, from))
	})
	switch {
	case errors.Is(err, domain.ErrInvalidStateTransition):
		run.Fail("INVALID_TRANSITION")
		return nil, err
	case errors.Is(err, ErrNotFound):
		run.Fail("ORDER_NOT_FOUND")
		return nil, err
	case err != nil:
		run.Fail("TX_FAILED")
		return nil, err
	}

	if !res.Changed {
		run.Note("NOOP")
	}
	run.With(observability.F("order_status", string(res.Order.Status)))
	return res, nil
}
