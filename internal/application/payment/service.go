package payment

import (
	"context"
	"strings"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCasePaymentStatus = "payment.status"

type StatusInput struct {
	Reference string
}

// StatusUseCase lets the storefront poll a payment after the provider redirect.
type StatusUseCase struct {
	uow application.UnitOfWork
	in  application.Instrument
}

func NewStatusUseCase(uow application.UnitOfWork, tel observability.Observability) *StatusUseCase {
	return &StatusUseCase{uow: uow, in: application.NewInstrument(tel, paymentService)}
}

func (uc *StatusUseCase) Execute(ctx context.Context, cmd StatusInput) (_ *dompay.Payment, err error) {
	ref := strings.TrimSpace(cmd.Reference)
	ctx, run := uc.in.Begin(ctx, useCasePaymentStatus, "PaymentStatus",
		attribute.String("payment.reference", ref),
	)
	defer func() { run.End(err) }()

	if ref == "" {
		run.Fail("REFERENCE_REQUIRED")
		return nil, application.NewValidation("reference", "reference is required")
	}
	var p *dompay.Payment
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		got, txErr := tx.Payments().GetByReference(ctx, ref)
		p = got
		return txErr
	})
	if err != nil {
		run.Fail("PAYMENT_NOT_FOUND")
		return nil, err
	}
	return p, nil
}

type Config struct {
	PaynowTimeout time.Duration
	PayPalTimeout time.Duration
}

type Dependencies struct {
	UnitOfWork application.UnitOfWork
	Paynow     PaynowGateway
	PayPal     PayPalGateway
	IDs        IDGenerator
	References ReferenceGenerator
	Telemetry  observability.Observability
}

// Service groups the payment use cases behind one handle for the transport layer.
type Service struct {
	reconcile *ReconcileUseCase
	initiate  application.UseCase[InitiatePaynowInput, *InitiatePaynowResult]
	webhook   application.UseCase[PaynowWebhookInput, *PaynowWebhookResult]
	create    application.UseCase[PayPalCreateInput, *PayPalCreateResult]
	capture   application.UseCase[PayPalCaptureInput, *PayPalCaptureResult]
	status    application.UseCase[StatusInput, *dompay.Payment]
}

func NewService(d Dependencies, cfg Config) *Service {
	reconcile := NewReconcileUseCase(d.UnitOfWork, d.Telemetry)
	return &Service{
		reconcile: reconcile,
		initiate:  NewInitiatePaynowUseCase(d.UnitOfWork, d.Paynow, d.IDs, d.References, reconcile, cfg.PaynowTimeout, d.Telemetry),
		webhook:   NewPaynowWebhookUseCase(d.UnitOfWork, d.Paynow, reconcile, d.Telemetry),
		create:    NewPayPalCreateUseCase(d.UnitOfWork, d.PayPal, d.IDs, cfg.PayPalTimeout, d.Telemetry),
		capture:   NewPayPalCaptureUseCase(d.UnitOfWork, d.PayPal, d.IDs, reconcile, cfg.PayPalTimeout, d.Telemetry),
		status:    NewStatusUseCase(d.UnitOfWork, d.Telemetry),
	}
}

func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	return s.reconcile.Execute(ctx, in)
}

func (s *Service) InitiatePaynow(ctx context.Context, in InitiatePaynowInput) (*InitiatePaynowResult, error) {
	return s.initiate.Execute(ctx, in)
}

func (s *Service) PaynowWebhook(ctx context.Context, in PaynowWebhookInput) (*PaynowWebhookResult, error) {
	return s.webhook.Execute(ctx, in)
}

func (s *Service) PayPalCreate(ctx context.Context, in PayPalCreateInput) (*PayPalCreateResult, error) {
	return s.create.Execute(ctx, in)
}

func (s *Service) PayPalCapture(ctx context.Context, in PayPalCaptureInput) (*PayPalCaptureResult, error) {
	return s.capture.Execute(ctx, in)
}

func (s *Service) Status(ctx context.Context, in StatusInput) (*dompay.Payment, error) {
	return s.status.Execute(ctx, in)
}
