package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/storefront/internal/application"
	appinv "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService        = "order-service"
	useCasePlaceOrder   = "order.place"
	MaxNumberAttempts   = 8
	maxPaymentMethodLen = 50
)

var (
	ErrConflict        = domain.ErrConflict
	ErrNotFound        = domain.ErrNotFound
	ErrRepository      = errors.New("order: repository failure")
	ErrNumberExhausted = errors.New("order: could not allocate a unique order number")
)

type LineInput struct {
	VariantID int64
	Quantity  int
}

type PlaceOrderInput struct {
	UserID          int64
	Items           []LineInput
	ShippingAddress string
	BillingAddress  string
	PaymentMethod   string
	PromoCode       string
}

type PlaceOrderResult struct {
	Order *domain.Order
}

// PlaceOrderUseCase turns a cart into an order in a single transaction: stock is
// reserved, prices come from the locked variant rows and the promo is redeemed.
type PlaceOrderUseCase struct {
	uow     application.UnitOfWork
	numbers NumberGenerator
	clock   Clock
	in      application.Instrument
}

func NewPlaceOrderUseCase(
	uow application.UnitOfWork,
	numbers NumberGenerator,
	clock Clock,
	tel observability.Observability,
) *PlaceOrderUseCase {
	if clock == nil {
		clock = systemClock()
	}
	return &PlaceOrderUseCase{
		uow:     uow,
		numbers: numbers,
		clock:   clock,
		in:      application.NewInstrument(tel, orderService),
	}
}

func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.Int64("order.user_id", cmd.UserID),
		attribute.Int("order.lines", len(cmd.Items)),
	)
	defer func() { run.End(err) }()

	if status, verr := validatePlaceOrder(cmd); verr != nil {
		run.Fail(status)
		return nil, verr
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	var placed *domain.Order
	err = uc.uow.Transact(ctx, func(ctx context.Context, tx application.Tx) error {
		o, txErr := uc.place(ctx, tx, cmd)
		if txErr != nil {
			return txErr
		}
		placed = o
		return nil
	})
	if err != nil {
		run.Fail(placeOrderStatus(err))
		return nil, err
	}

	run.Span().SetAttributes(
		attribute.Int64("order.id", placed.ID),
		attribute.String("order.number", placed.Number),
		attribute.String("order.total", placed.TotalPrice.StringFixed(2)),
	)
	run.Event("order.placed", attribute.Int64("order.id", placed.ID))
	run.With(
		observability.F("order_id", placed.ID),
		observability.F("order_number", placed.Number),
	)
	return &PlaceOrderResult{Order: placed}, nil
}

func (uc *PlaceOrderUseCase) place(ctx context.Context, tx application.Tx, cmd PlaceOrderInput) (*domain.Order, error) {
	now := uc.clock.Now()

	var promo *pricing.PromoCode
	if code := pricing.NormalizeCode(cmd.PromoCode); code != "" {
		p, err := tx.Promos().GetByCodeForUpdate(ctx, code)
		switch {
		case errors.Is(err, pricing.ErrNotFound):
			return nil, &pricing.InvalidPromoError{Code: code, Reason: pricing.ReasonNotFound}
		case err != nil:
			return nil, wrapRepositoryError(err)
		}
		if err := p.ValidateAt(now); err != nil {
			return nil, err
		}
		promo = p
	}

	lines := make([]appinv.Line, len(cmd.Items))
	for i, it := range cmd.Items {
		lines[i] = appinv.Line{VariantID: it.VariantID, Quantity: it.Quantity}
	}
	reserved, err := appinv.ReserveAll(ctx, tx.Variants(), lines)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, len(reserved))
	priced := make([]pricing.Line, len(reserved))
	remaining := make(map[int64]int, len(reserved))
	for i, r := range reserved {
		price := pricing.LinePrice(r.Variant)
		items[i] = domain.Item{VariantID: r.Line.VariantID, Quantity: r.Line.Quantity, Price: price}
		priced[i] = pricing.Line{Price: price, Quantity: r.Line.Quantity}
		if left, ok := remaining[r.Variant.ID]; !ok || r.Variant.Stock < left {
			remaining[r.Variant.ID] = r.Variant.Stock
		}
	}

	subtotal := pricing.Subtotal(priced...)
	var promoID *int64
	if promo != nil {
		if err := promo.Validate(now, subtotal); err != nil {
			return nil, err
		}
		if err := promo.Redeem(); err != nil {
			return nil, err
		}
		if err := tx.Promos().UpdateUsage(ctx, promo.ID, promo.UsedCount); err != nil {
			return nil, wrapRepositoryError(err)
		}
		id := promo.ID
		promoID = &id
	}
	discount, total := pricing.ApplyPromo(subtotal, promo)

	o, err := uc.insert(ctx, tx, domain.Draft{
		UserID:          cmd.UserID,
		Items:           items,
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		TotalPrice:      total,
		PromoCodeID:     promoID,
		ShippingAddress: strings.TrimSpace(cmd.ShippingAddress),
		BillingAddress:  strings.TrimSpace(cmd.BillingAddress),
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Outbox().Append(ctx, domain.NewOrderPlacedEvent(o, remaining)); err != nil {
		return nil, fmt.Errorf("order: append placed event: %w", err)
	}
	return o, nil
}

// insert allocates a fresh order number and persists the order, retrying when
// the number is already taken.
func (uc *PlaceOrderUseCase) insert(ctx context.Context, tx application.Tx, d domain.Draft) (*domain.Order, error) {
	for attempt := 0; attempt < MaxNumberAttempts; attempt++ {
		number := uc.numbers.NewOrderNumber()
		taken, err := tx.Orders().NumberExists(ctx, number)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if taken {
			continue
		}

		d.Number = number
		o, err := domain.New(d)
		if err != nil {
			return nil, fmt.Errorf("order: construct: %w", err)
		}
		err = tx.Orders().Insert(ctx, o)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		return o, nil
	}
	return nil, ErrNumberExhausted
}

func validatePlaceOrder(cmd PlaceOrderInput) (string, error) {
	if cmd.UserID <= 0 {
		return "USER_REQUIRED", application.NewValidation("user_id", "authenticated user is required")
	}
	if len(cmd.Items) == 0 {
		return "EMPTY_CART", domain.ErrEmptyCart
	}
	for i, it := range cmd.Items {
		if it.VariantID <= 0 {
			return "VARIANT_ID_INVALID", application.NewValidation(fmt.Sprintf("items[%d].variant_id", i), "variant id is required")
		}
		if it.Quantity <= 0 {
			return "QUANTITY_INVALID", application.NewValidation(fmt.Sprintf("items[%d].quantity", i), "quantity must be greater than zero")
		}
	}
	if strings.TrimSpace(cmd.ShippingAddress) == "" {
		return "SHIPPING_ADDRESS_REQUIRED", application.NewValidation("shipping_address", "shipping address is required")
	}
	if strings.TrimSpace(cmd.BillingAddress) == "" {
		return "BILLING_ADDRESS_REQUIRED", application.NewValidation("billing_address", "billing address is required")
	}
	method := strings.TrimSpace(cmd.PaymentMethod)
	if method == "" {
		return "PAYMENT_METHOD_REQUIRED", application.NewValidation("payment_method", "payment method is required")
	}
	if len(method) > maxPaymentMethodLen {
		return "PAYMENT_METHOD_INVALID", application.NewValidation("payment_method", "payment method is too long")
	}
	return "", nil
}

func placeOrderStatus(err error) string {
	var (
		stock *dominv.InsufficientStockError
		promo *pricing.InvalidPromoError
	)
	switch {
	case errors.As(err, &stock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, dominv.ErrNotFound):
		return "VARIANT_NOT_FOUND"
	case errors.As(err, &promo):
		return "INVALID_PROMO"
	case errors.Is(err, ErrNumberExhausted):
		return "ORDER_NUMBER_EXHAUSTED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "TX_FAILED"
	}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
