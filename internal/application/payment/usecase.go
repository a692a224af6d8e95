package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService     = "payment-service"
	useCaseReconcile   = "payment.reconcile"
	ReasonAuthenticity = "authenticity_check_failed"

	DefaultProviderTimeout = 15 * time.Second
)

type ReconcileInput struct {
	Provider dompay.Provider
	// Reference is the merchant reference. When empty the payment is located
	// by ProviderReference instead.
	Reference         string
	ProviderReference string
	Outcome           dompay.Status
	Reason            string
	// Forged marks an event whose authenticity check failed. The payment is
	// failed and the order is left alone.
	Forged bool
}

type ReconcileResult struct {
	Payment      *dompay.Payment
	Applied      bool
	Forged       bool
	OrderChanged bool
}

// ReconcileUseCase applies a provider outcome to a payment exactly once and
// cascades it to the owning order.
type ReconcileUseCase struct {
	uow application.UnitOfWork
	in  application.Instrument

	reconciled observability.Counter // payment_reconciliations_total{provider,status,outcome}
}

func NewReconcileUseCase(uow application.UnitOfWork, tel observability.Observability) *ReconcileUseCase {
	in := application.NewInstrument(tel, paymentService)
	return &ReconcileUseCase{
		uow:        uow,
		in:         in,
		reconciled: in.Metrics().Counter(observability.MPaymentReconciliations),
	}
}

func (uc *ReconcileUseCase) Execute(ctx context.Context, cmd ReconcileInput) (_ *ReconcileResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseReconcile, "ReconcilePayment",
		attribute.String("payment.provider", string(cmd.Provider)),
		attribute.String("payment.reference", cmd.Reference),
		attribute.String("payment.outcome", string(cmd.Outcome)),
		attribute.Bool("payment.forged", cmd.Forged),
	)
	defer func() { run.End(err) }()

	var res *ReconcileResult
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		r, txErr := uc.Apply(ctx, tx, cmd)
		res = r
		return txErr
	})
	if err != nil {
		switch {
		case errors.Is(err, dompay.ErrNotFound):
			run.Fail("PAYMENT_NOT_FOUND")
		case errors.Is(err, dompay.ErrInvalidStatus):
			run.Fail("OUTCOME_INVALID")
		default:
			run.Fail("TX_FAILED")
		}
		return nil, err
	}

	uc.Record(res)
	switch {
	case res.Forged:
		run.Note("FORGED")
		run.Logger.Warn("payment_authenticity_failed",
			observability.F("reference", res.Payment.Reference),
			observability.F("provider", string(res.Payment.Provider)),
		)
	case !res.Applied:
		run.Note("IDEMPOTENT_REPLAY")
	}
	run.With(
		observability.F("payment_status", string(res.Payment.Status)),
		observability.F("order_id", res.Payment.OrderID),
		observability.F("order_changed", res.OrderChanged),
	)
	return res, nil
}

// Apply runs the reconciliation inside the caller's transaction. The payment
// row is locked first, then the order row.
func (uc *ReconcileUseCase) Apply(ctx context.Context, tx application.Tx, cmd ReconcileInput) (*ReconcileResult, error) {
	outcome, reason := cmd.Outcome, cmd.Reason
	if cmd.Forged {
		outcome, reason = dompay.StatusFailed, ReasonAuthenticity
	}
	if !outcome.IsTerminal() {
		return nil, fmt.Errorf("%w: %q", dompay.ErrInvalidStatus, outcome)
	}

	p, err := lockPayment(ctx, tx, cmd)
	if err != nil {
		return nil, err
	}
	// A reference only resolves within the provider that issued it.
	if p.Provider != cmd.Provider {
		return nil, fmt.Errorf("%w: %s is not a %s payment", dompay.ErrNotFound, p.Reference, cmd.Provider)
	}
	res := &ReconcileResult{Payment: p, Forged: cmd.Forged}

	applied, err := p.Transition(outcome, reason)
	if err != nil {
		return nil, err
	}
	if !applied {
		return res, nil
	}
	res.Applied = true
	if cmd.ProviderReference != "" && p.ProviderReference == "" {
		p.ProviderReference = cmd.ProviderReference
	}
	if err := tx.Payments().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("payment: update %s: %w", p.Reference, err)
	}
	if err := tx.Outbox().Append(ctx, dompay.NewReconciledEvent(p, cmd.Forged)); err != nil {
		return nil, fmt.Errorf("payment: append reconciled event: %w", err)
	}
	if cmd.Forged {
		return res, nil
	}

	o, err := tx.Orders().GetForUpdate(ctx, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("payment: load order %d: %w", p.OrderID, err)
	}
	from := o.Status
	var changed bool
	switch outcome {
	case dompay.StatusPaid:
		changed, err = o.MarkPaid()
	case dompay.StatusCancelled:
		changed, err = o.MarkPaymentCancelled()
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return res, nil
	}
	res.OrderChanged = true
	if err := tx.Orders().Update(ctx, o); err != nil {
		return nil, fmt.Errorf("payment: update order %d: %w", o.ID, err)
	}
	if err := tx.Outbox().Append(ctx, domorder.NewOrderStatusChangedEvent(o, from)); err != nil {
		return nil, fmt.Errorf("payment: append order status event: %w", err)
	}
	return res, nil
}

// Record counts a committed reconciliation.
func (uc *ReconcileUseCase) Record(res *ReconcileResult) {
	if res == nil || res.Payment == nil {
		return
	}
	outcome := "applied"
	switch {
	case res.Forged:
		outcome = "forged"
	case !res.Applied:
		outcome = "noop"
	}
	uc.reconciled.Add(1,
		observability.L("provider", string(res.Payment.Provider)),
		observability.L("status", string(res.Payment.Status)),
		observability.L("outcome", outcome),
	)
}

func lockPayment(ctx context.Context, tx application.Tx, cmd ReconcileInput) (*dompay.Payment, error) {
	if cmd.Reference != "" {
		return tx.Payments().GetByReferenceForUpdate(ctx, cmd.Reference)
	}
	if cmd.ProviderReference != "" {
		return tx.Payments().GetByProviderReferenceForUpdate(ctx, cmd.Provider, cmd.ProviderReference)
	}
	return nil, application.NewValidation("reference", "payment reference is required")
}
