package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("pricing: promo code not found")
	ErrInvalidPromo = errors.New("pricing: invalid promo code")
)

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// Reasons reported by InvalidPromoError.
const (
	ReasonNotFound     = "not_found"
	ReasonInactive     = "inactive"
	ReasonNotYetValid  = "not_yet_valid"
	ReasonExpired      = "expired"
	ReasonUsageLimit   = "usage_limit_reached"
	ReasonMinPurchase  = "minimum_purchase_not_met"
	ReasonUnknownType  = "unknown_discount_type"
	moneyDecimalPlaces = 2
)

var hundred = decimal.NewFromInt(100)

type PromoCode struct {
	ID           int64
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Active       bool
	ValidFrom    time.Time
	ValidTo      *time.Time
	// UsageLimit <= 0 means unlimited.
	UsageLimit  int
	UsedCount   int
	MinPurchase decimal.Decimal
}

type InvalidPromoError struct {
	Code   string
	Reason string
}

func (e *InvalidPromoError) Error() string {
	return fmt.Sprintf("pricing: promo code %q is invalid: %s", e.Code, e.Reason)
}

func (e *InvalidPromoError) Unwrap() error { return ErrInvalidPromo }

// NormalizeCode upper-cases and trims a customer-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LinePrice is the authoritative unit price of a variant: the discount price when set, else the list price.
func LinePrice(v *inventory.Variant) decimal.Decimal {
	if v.DiscountPrice.Valid && v.DiscountPrice.Decimal.IsPositive() {
		return v.DiscountPrice.Decimal
	}
	return v.Price
}

// ValidateAt checks the promo against the clock and its usage counter.
func (p *PromoCode) ValidateAt(now time.Time) error {
	switch {
	case !p.Active:
		return p.invalid(ReasonInactive)
	case p.ValidFrom.After(now):
		return p.invalid(ReasonNotYetValid)
	case p.ValidTo != nil && p.ValidTo.Before(now):
		return p.invalid(ReasonExpired)
	case p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit:
		return p.invalid(ReasonUsageLimit)
	case p.DiscountType != DiscountPercent && p.DiscountType != DiscountFixed:
		return p.invalid(ReasonUnknownType)
	}
	return nil
}

// Validate runs ValidateAt and then checks the minimum purchase against subtotal.
func (p *PromoCode) Validate(now time.Time, subtotal decimal.Decimal) error {
	if err := p.ValidateAt(now); err != nil {
		return err
	}
	if subtotal.LessThan(p.MinPurchase) {
		return p.invalid(ReasonMinPurchase)
	}
	return nil
}

// Redeem counts one use of the code.
func (p *PromoCode) Redeem() error {
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return p.invalid(ReasonUsageLimit)
	}
	p.UsedCount++
	return nil
}

func (p *PromoCode) invalid(reason string) error {
	return &InvalidPromoError{Code: p.Code, Reason: reason}
}

// ApplyPromo returns the discount and the final total. The discount never exceeds
// the subtotal, so the total is never negative. A nil promo yields no discount.
func ApplyPromo(subtotal decimal.Decimal, promo *PromoCode) (discount, total decimal.Decimal) {
	if promo == nil || !subtotal.IsPositive() {
		return decimal.Zero, decimal.Max(subtotal, decimal.Zero)
	}

	switch promo.DiscountType {
	case DiscountPercent:
		discount = subtotal.Mul(promo.Value).Div(hundred).Round(moneyDecimalPlaces)
	case DiscountFixed:
		discount = promo.Value
	default:
		discount = decimal.Zero
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount, subtotal.Sub(discount)
}

// Subtotal sums price*quantity over the given lines.
func Subtotal(lines ...Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

func (p *PromoCode) Clone() *PromoCode {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ValidTo != nil {
		to := *p.ValidTo
		clone.ValidTo = &to
	}
	return &clone
}
