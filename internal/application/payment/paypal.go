package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCasePayPalCreate  = "payment.paypal.create"
	useCasePayPalCapture = "payment.paypal.capture"
	peerPayPal           = "paypal"
	payPalRefPrefix      = "PAYPAL-"
)

func payPalReference(paypalOrderID string) string { return payPalRefPrefix + paypalOrderID }

type PayPalCreateInput struct {
	Actor   application.Actor
	OrderID int64
}

type PayPalCreateResult struct {
	Order     *PayPalOrder
	Reference string
}

// PayPalCreateUseCase opens a PayPal order for the caller's unpaid order and
// records a pending payment keyed by the PayPal order id.
type PayPalCreateUseCase struct {
	uow     application.UnitOfWork
	gateway PayPalGateway
	ids     IDGenerator
	timeout time.Duration
	in      application.Instrument
}

func NewPayPalCreateUseCase(
	uow application.UnitOfWork,
	gateway PayPalGateway,
	ids IDGenerator,
	timeout time.Duration,
	tel observability.Observability,
) *PayPalCreateUseCase {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &PayPalCreateUseCase{
		uow:     uow,
		gateway: gateway,
		ids:     ids,
		timeout: timeout,
		in:      application.NewInstrument(tel, paymentService),
	}
}

func (uc *PayPalCreateUseCase) Execute(ctx context.Context, cmd PayPalCreateInput) (_ *PayPalCreateResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePayPalCreate, "PayPalCreate",
		attribute.Int64("order.id", cmd.OrderID),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID <= 0 {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("order_id", "order_id is required")
	}

	var o *domorder.Order
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		got, txErr := tx.Orders().Get(ctx, cmd.OrderID)
		if txErr != nil {
			return txErr
		}
		if !got.OwnedBy(cmd.Actor.UserID) {
			return domorder.ErrNotFound
		}
		o = got
		return nil
	})
	if err == nil {
		switch {
		case o.PaymentStatus:
			err = domorder.ErrAlreadyPaid
		case !o.TotalPrice.IsPositive():
			err = dompay.ErrInvalidAmount
		}
	}
	if err != nil {
		run.Fail(openStatus(err))
		return nil, err
	}

	var po *PayPalOrder
	err = uc.in.External(ctx, peerPayPal, "create_order", uc.timeout, func(ctx context.Context) error {
		created, callErr := uc.gateway.CreateOrder(ctx, PayPalOrderRequest{
			ReferenceID: o.Number,
			Amount:      o.TotalPrice,
		})
		po = created
		return callErr
	})
	if err != nil {
		return nil, failProvider(run, err)
	}
	run.Span().SetAttributes(attribute.String("paypal.order_id", po.ID))

	ref := payPalReference(po.ID)
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		p, txErr := dompay.New(uc.ids.NewID(), o.ID, dompay.ProviderPayPal, ref, o.TotalPrice)
		if txErr != nil {
			return txErr
		}
		p.ProviderReference = po.ID
		return tx.Payments().Insert(ctx, p)
	})
	if err != nil {
		run.Fail(openStatus(err))
		return nil, err
	}
	run.With(observability.F("reference", ref))
	return &PayPalCreateResult{Order: po, Reference: ref}, nil
}

type PayPalCaptureInput struct {
	Actor         application.Actor
	PayPalOrderID string
	OrderID       int64
}

type PayPalCaptureResult struct {
	OrderID   int64
	Reference string
	Status    dompay.Status
}

// PayPalCaptureUseCase captures an approved PayPal order. The order row stays
// locked across the provider call, so concurrent captures of one order result
// in a single capture.
type PayPalCaptureUseCase struct {
	uow       application.UnitOfWork
	gateway   PayPalGateway
	ids       IDGenerator
	reconcile *ReconcileUseCase
	timeout   time.Duration
	in        application.Instrument
}

func NewPayPalCaptureUseCase(
	uow application.UnitOfWork,
	gateway PayPalGateway,
	ids IDGenerator,
	reconcile *ReconcileUseCase,
	timeout time.Duration,
	tel observability.Observability,
) *PayPalCaptureUseCase {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &PayPalCaptureUseCase{
		uow:       uow,
		gateway:   gateway,
		ids:       ids,
		reconcile: reconcile,
		timeout:   timeout,
		in:        application.NewInstrument(tel, paymentService),
	}
}

func (uc *PayPalCaptureUseCase) Execute(ctx context.Context, cmd PayPalCaptureInput) (_ *PayPalCaptureResult, err error) {
	paypalID := strings.TrimSpace(cmd.PayPalOrderID)
	ctx, run := uc.in.Begin(ctx, useCasePayPalCapture, "PayPalCapture",
		attribute.Int64("order.id", cmd.OrderID),
		attribute.String("paypal.order_id", paypalID),
	)
	defer func() { run.End(err) }()

	if paypalID == "" {
		run.Fail("PAYPAL_ORDER_ID_REQUIRED")
		return nil, application.NewValidation("paypal_order_id", "paypal_order_id is required")
	}
	if cmd.OrderID <= 0 {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("user_order_id", "user_order_id is required")
	}

	var (
		rec         *ReconcileResult
		providerErr error
	)
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		o, txErr := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if txErr != nil {
			return txErr
		}
		if !o.OwnedBy(cmd.Actor.UserID) {
			return domorder.ErrNotFound
		}
		if o.PaymentStatus {
			return domorder.ErrAlreadyPaid
		}

		var captured *PayPalOrder
		txErr = uc.in.External(ctx, peerPayPal, "capture_order", uc.timeout, func(ctx context.Context) error {
			c, callErr := uc.gateway.CaptureOrder(ctx, paypalID)
			captured = c
			return callErr
		})
		if txErr != nil {
			providerErr = txErr
			return txErr
		}
		if captured.Status != PayPalStatusCompleted {
			return fmt.Errorf("%w: status %s", ErrCaptureIncomplete, captured.Status)
		}

		p, txErr := uc.paymentFor(ctx, tx, o, paypalID)
		if txErr != nil {
			return txErr
		}
		rec, txErr = uc.reconcile.Apply(ctx, tx, ReconcileInput{
			Provider:          dompay.ProviderPayPal,
			Reference:         p.Reference,
			ProviderReference: paypalID,
			Outcome:           dompay.StatusPaid,
		})
		return txErr
	})
	if err != nil {
		switch {
		case providerErr != nil:
			return nil, failProvider(run, err)
		case errors.Is(err, ErrCaptureIncomplete):
			run.Fail("CAPTURE_INCOMPLETE")
		case errors.Is(err, application.ErrValidation):
			run.Fail("PAYMENT_MISMATCH")
		default:
			run.Fail(openStatus(err))
		}
		return nil, err
	}

	uc.reconcile.Record(rec)
	run.With(
		observability.F("reference", rec.Payment.Reference),
		observability.F("order_changed", rec.OrderChanged),
	)
	return &PayPalCaptureResult{
		OrderID:   cmd.OrderID,
		Reference: rec.Payment.Reference,
		Status:    rec.Payment.Status,
	}, nil
}

// paymentFor returns the locked payment for the PayPal order. A new attempt is
// recorded when the create step never persisted one, or when the latest
// attempt already ended failed or cancelled.
func (uc *PayPalCaptureUseCase) paymentFor(ctx context.Context, tx application.Tx, o *domorder.Order, paypalID string) (*dompay.Payment, error) {
	reference := payPalReference(paypalID)
	p, err := tx.Payments().GetByProviderReferenceForUpdate(ctx, dompay.ProviderPayPal, paypalID)
	switch {
	case err == nil:
		if p.OrderID != o.ID {
			return nil, application.NewValidation("paypal_order_id", "paypal order belongs to another order")
		}
		if p.Status == dompay.StatusPending || p.Status == dompay.StatusPaid {
			return p, nil
		}
		reference = reference + "-" + uc.ids.NewID()
	case !errors.Is(err, dompay.ErrNotFound):
		return nil, err
	}

	p, err = dompay.New(uc.ids.NewID(), o.ID, dompay.ProviderPayPal, reference, o.TotalPrice)
	if err != nil {
		return nil, err
	}
	p.ProviderReference = paypalID
	if err := tx.Payments().Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func failProvider(run *application.Run, err error) error {
	var rejected *ProviderError
	if errors.As(err, &rejected) {
		run.Fail("PROVIDER_REJECTED")
		return err
	}
	run.Fail("PROVIDER_UNAVAILABLE")
	return unavailable(err)
}
