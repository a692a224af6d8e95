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
	useCasePaynowInitiate = "payment.paynow.initiate"
	useCasePaynowWebhook  = "payment.paynow.webhook"
	peerPaynow            = "paynow"
)

// MapPaynowStatus translates a Paynow status string. final is false for
// intermediate statuses that must be acknowledged without any transition.
func MapPaynowStatus(status string) (outcome dompay.Status, final bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "awaiting delivery", "delivered":
		return dompay.StatusPaid, true
	case "cancelled":
		return dompay.StatusCancelled, true
	case "created", "sent":
		return "", false
	default:
		return dompay.StatusFailed, true
	}
}

type InitiatePaynowInput struct {
	Actor   application.Actor
	OrderID int64
}

type InitiatePaynowResult struct {
	RedirectURL string
	PollURL     string
	Reference   string
}

// InitiatePaynowUseCase opens a Paynow payment for an unpaid order. The
// pending payment is committed before the provider is called.
type InitiatePaynowUseCase struct {
	uow       application.UnitOfWork
	gateway   PaynowGateway
	ids       IDGenerator
	refs      ReferenceGenerator
	reconcile *ReconcileUseCase
	timeout   time.Duration
	in        application.Instrument
}

func NewInitiatePaynowUseCase(
	uow application.UnitOfWork,
	gateway PaynowGateway,
	ids IDGenerator,
	refs ReferenceGenerator,
	reconcile *ReconcileUseCase,
	timeout time.Duration,
	tel observability.Observability,
) *InitiatePaynowUseCase {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &InitiatePaynowUseCase{
		uow:       uow,
		gateway:   gateway,
		ids:       ids,
		refs:      refs,
		reconcile: reconcile,
		timeout:   timeout,
		in:        application.NewInstrument(tel, paymentService),
	}
}

func (uc *InitiatePaynowUseCase) Execute(ctx context.Context, cmd InitiatePaynowInput) (_ *InitiatePaynowResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaynowInitiate, "InitiatePaynow",
		attribute.Int64("order.id", cmd.OrderID),
	)
	defer func() { run.End(err) }()

	if cmd.OrderID <= 0 {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("order_id", "order_id is required")
	}

	var (
		p      *dompay.Payment
		number string
	)
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		o, txErr := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if txErr != nil {
			return txErr
		}
		if !cmd.Actor.CanSee(o.UserID) {
			return domorder.ErrNotFound
		}
		if o.PaymentStatus {
			return domorder.ErrAlreadyPaid
		}
		number = o.Number
		p, txErr = dompay.New(uc.ids.NewID(), o.ID, dompay.ProviderPaynow, uc.refs.NewPaymentReference(o.Number), o.TotalPrice)
		if txErr != nil {
			return txErr
		}
		return tx.Payments().Insert(ctx, p)
	})
	if err != nil {
		run.Fail(openStatus(err))
		return nil, err
	}
	run.With(observability.F("reference", p.Reference))
	run.Span().SetAttributes(attribute.String("payment.reference", p.Reference))

	var redirect *PaynowRedirect
	err = uc.in.External(ctx, peerPaynow, "initiate", uc.timeout, func(ctx context.Context) error {
		r, callErr := uc.gateway.Initiate(ctx, PaynowRequest{
			Reference:      p.Reference,
			Amount:         p.Amount,
			AdditionalInfo: fmt.Sprintf("Payment for Order #%s", number),
		})
		redirect = r
		return callErr
	})
	if err != nil {
		var rejected *ProviderError
		if errors.As(err, &rejected) {
			run.Fail("PROVIDER_REJECTED")
			if _, rerr := uc.reconcile.Execute(ctx, ReconcileInput{
				Provider:  dompay.ProviderPaynow,
				Reference: p.Reference,
				Outcome:   dompay.StatusFailed,
				Reason:    rejected.Message,
			}); rerr != nil {
				run.Logger.Error("payment_fail_mark_failed",
					observability.F("reference", p.Reference),
					observability.Err(rerr),
				)
			}
			return nil, err
		}
		run.Fail("PROVIDER_UNAVAILABLE")
		return nil, unavailable(err)
	}

	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		cur, txErr := tx.Payments().GetByReferenceForUpdate(ctx, p.Reference)
		if txErr != nil {
			return txErr
		}
		cur.ProviderReference = redirect.ProviderReference
		return tx.Payments().Update(ctx, cur)
	})
	if err != nil {
		run.Fail("PROVIDER_REFERENCE_SAVE_FAILED")
		return nil, err
	}

	return &InitiatePaynowResult{
		RedirectURL: redirect.BrowserURL,
		PollURL:     redirect.PollURL,
		Reference:   p.Reference,
	}, nil
}

type PaynowWebhookInput struct {
	Fields []Field
}

type PaynowWebhookResult struct {
	Reference string
	Status    dompay.Status
	Authentic bool
	Applied   bool
}

// PaynowWebhookUseCase handles Paynow's result URL callback.
type PaynowWebhookUseCase struct {
	uow       application.UnitOfWork
	gateway   PaynowGateway
	reconcile *ReconcileUseCase
	in        application.Instrument
}

func NewPaynowWebhookUseCase(
	uow application.UnitOfWork,
	gateway PaynowGateway,
	reconcile *ReconcileUseCase,
	tel observability.Observability,
) *PaynowWebhookUseCase {
	return &PaynowWebhookUseCase{
		uow:       uow,
		gateway:   gateway,
		reconcile: reconcile,
		in:        application.NewInstrument(tel, paymentService),
	}
}

func (uc *PaynowWebhookUseCase) Execute(ctx context.Context, cmd PaynowWebhookInput) (_ *PaynowWebhookResult, err error) {
	reference := lookup(cmd.Fields, "reference")
	status, hasStatus := lookupOK(cmd.Fields, "status")
	ctx, run := uc.in.Begin(ctx, useCasePaynowWebhook, "PaynowWebhook",
		attribute.String("payment.reference", reference),
		attribute.String("paynow.status", status),
	)
	defer func() { run.End(err) }()

	if reference == "" {
		run.Fail("REFERENCE_REQUIRED")
		return nil, application.NewValidation("reference", "reference is required")
	}
	if !hasStatus {
		run.Fail("STATUS_REQUIRED")
		return nil, application.NewValidation("status", "status is required")
	}

	res := &PaynowWebhookResult{Reference: reference, Authentic: uc.gateway.Verify(cmd.Fields)}
	in := ReconcileInput{
		Provider:          dompay.ProviderPaynow,
		Reference:         reference,
		ProviderReference: lookup(cmd.Fields, "paynowreference"),
	}

	if !res.Authentic {
		in.Forged = true
	} else {
		outcome, final := MapPaynowStatus(status)
		if !final {
			run.Note("INTERMEDIATE_STATUS")
			p, lerr := uc.current(ctx, reference)
			if lerr != nil {
				run.Fail("PAYMENT_NOT_FOUND")
				return nil, lerr
			}
			res.Status = p.Status
			return res, nil
		}
		in.Outcome = outcome
		in.Reason = "paynow status: " + strings.ToLower(status)
	}

	rec, err := uc.reconcile.Execute(ctx, in)
	if err != nil {
		if errors.Is(err, dompay.ErrNotFound) {
			run.Fail("PAYMENT_NOT_FOUND")
		}
		return nil, err
	}
	res.Status, res.Applied = rec.Payment.Status, rec.Applied
	switch {
	case !res.Authentic:
		run.Note("HASH_MISMATCH")
	case !rec.Applied:
		run.Note("IDEMPOTENT_REPLAY")
	}
	return res, nil
}

func (uc *PaynowWebhookUseCase) current(ctx context.Context, reference string) (*dompay.Payment, error) {
	var p *dompay.Payment
	err := uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		got, txErr := tx.Payments().GetByReference(ctx, reference)
		if txErr != nil {
			return txErr
		}
		if got.Provider != dompay.ProviderPaynow {
			return dompay.ErrNotFound
		}
		p = got
		return nil
	})
	return p, err
}

func lookup(fields []Field, key string) string {
	v, _ := lookupOK(fields, key)
	return v
}

func lookupOK(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return "", false
}

func unavailable(err error) error {
	if errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func openStatus(err error) string {
	switch {
	case errors.Is(err, domorder.ErrNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, domorder.ErrAlreadyPaid):
		return "ALREADY_PAID"
	case errors.Is(err, dompay.ErrInvalidAmount):
		return "AMOUNT_INVALID"
	case errors.Is(err, dompay.ErrDuplicateReference):
		return "REFERENCE_CONFLICT"
	default:
		return "TX_FAILED"
	}
}
