package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseValidatePromo = "order.validate_promo"

type ValidatePromoInput struct {
	Code      string
	CartTotal decimal.Decimal
}

type ValidatePromoResult struct {
	Code           string
	DiscountType   pricing.DiscountType
	Value          decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// ValidatePromoUseCase quotes a promo code against a cart total. It is advisory:
// nothing is locked or redeemed, and placement re-validates.
type ValidatePromoUseCase struct {
	uow   application.UnitOfWork
	clock Clock
	in    application.Instrument
}

func NewValidatePromoUseCase(uow application.UnitOfWork, clock Clock, tel observability.Observability) *ValidatePromoUseCase {
	if clock == nil {
		clock = systemClock()
	}
	return &ValidatePromoUseCase{uow: uow, clock: clock, in: application.NewInstrument(tel, orderService)}
}

func (uc *ValidatePromoUseCase) Execute(ctx context.Context, cmd ValidatePromoInput) (_ *ValidatePromoResult, err error) {
	code := pricing.NormalizeCode(cmd.Code)
	ctx, run := uc.in.Begin(ctx, useCaseValidatePromo, "ValidatePromo",
		attribute.String("promo.code", code),
	)
	defer func() { run.End(err) }()

	if code == "" {
		run.Fail("CODE_REQUIRED")
		return nil, application.NewValidation("code", "promo code is required")
	}
	if cmd.CartTotal.IsNegative() {
		run.Fail("CART_TOTAL_INVALID")
		return nil, application.NewValidation("cart_total", "cart total must be zero or greater")
	}

	var promo *pricing.PromoCode
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		p, txErr := tx.Promos().GetByCode(ctx, code)
		if errors.Is(txErr, pricing.ErrNotFound) {
			return &pricing.InvalidPromoError{Code: code, Reason: pricing.ReasonNotFound}
		}
		promo = p
		return txErr
	})
	if err == nil {
		err = promo.Validate(uc.clock.Now(), cmd.CartTotal)
	}
	if err != nil {
		var invalid *pricing.InvalidPromoError
		if errors.As(err, &invalid) {
			run.Fail("INVALID_PROMO")
			run.With(observability.F("reason", invalid.Reason))
		}
		return nil, err
	}

	discount, total := pricing.ApplyPromo(cmd.CartTotal, promo)
	return &ValidatePromoResult{
		Code:           promo.Code,
		DiscountType:   promo.DiscountType,
		Value:          promo.Value,
		DiscountAmount: discount,
		Total:          total,
	}, nil
}
