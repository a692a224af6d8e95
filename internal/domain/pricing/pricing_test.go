package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyPromoPercent(t *testing.T) {
	promo := &PromoCode{Code: "TEN", DiscountType: DiscountPercent, Value: dec("10")}

	discount, total := ApplyPromo(dec("100.00"), promo)

	assert.True(t, discount.Equal(dec("10.00")), discount.String())
	assert.True(t, total.Equal(dec("90.00")), total.String())
}

func TestApplyPromoFixedIsClampedToSubtotal(t *testing.T) {
	promo := &PromoCode{Code: "BIG", DiscountType: DiscountFixed, Value: dec("15")}

	discount, total := ApplyPromo(dec("10.00"), promo)

	assert.True(t, discount.Equal(dec("10.00")), discount.String())
	assert.True(t, total.IsZero(), total.String())
}

func TestApplyPromoPercentRoundsToCents(t *testing.T) {
	promo := &PromoCode{Code: "ODD", DiscountType: DiscountPercent, Value: dec("15")}

	discount, total := ApplyPromo(dec("33.33"), promo)

	assert.True(t, discount.Equal(dec("5.00")), discount.String())
	assert.True(t, total.Equal(dec("28.33")), total.String())
}

func TestApplyPromoWithoutPromo(t *testing.T) {
	discount, total := ApplyPromo(dec("42.50"), nil)

	assert.True(t, discount.IsZero())
	assert.True(t, total.Equal(dec("42.50")))
}

func TestLinePricePrefersDiscount(t *testing.T) {
	v := &inventory.Variant{ID: 1, Price: dec("20.00")}
	assert.True(t, LinePrice(v).Equal(dec("20.00")))

	v.DiscountPrice = decimal.NewNullDecimal(dec("15.00"))
	assert.True(t, LinePrice(v).Equal(dec("15.00")))

	v.DiscountPrice = decimal.NewNullDecimal(decimal.Zero)
	assert.True(t, LinePrice(v).Equal(dec("20.00")))
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := func() *PromoCode {
		return &PromoCode{
			Code:         "SUMMER",
			DiscountType: DiscountPercent,
			Value:        dec("10"),
			Active:       true,
			ValidFrom:    now.Add(-24 * time.Hour),
			ValidTo:      &future,
			UsageLimit:   100,
		}
	}

	tests := []struct {
		name   string
		mutate func(p *PromoCode)
		total  string
		reason string
	}{
		{name: "valid", mutate: func(*PromoCode) {}, total: "50"},
		{name: "open ended", mutate: func(p *PromoCode) { p.ValidTo = nil }, total: "50"},
		{name: "inactive", mutate: func(p *PromoCode) { p.Active = false }, total: "50", reason: ReasonInactive},
		{name: "not yet valid", mutate: func(p *PromoCode) { p.ValidFrom = future }, total: "50", reason: ReasonNotYetValid},
		{name: "expired", mutate: func(p *PromoCode) { p.ValidTo = &past }, total: "50", reason: ReasonExpired},
		{name: "usage exhausted", mutate: func(p *PromoCode) { p.UsedCount = 100 }, total: "50", reason: ReasonUsageLimit},
		{name: "unlimited usage", mutate: func(p *PromoCode) { p.UsageLimit = 0; p.UsedCount = 5000 }, total: "50"},
		{name: "below minimum", mutate: func(p *PromoCode) { p.MinPurchase = dec("60") }, total: "50", reason: ReasonMinPurchase},
		{name: "unknown type", mutate: func(p *PromoCode) { p.DiscountType = "BOGO" }, total: "50", reason: ReasonUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)

			err := p.Validate(now, dec(tt.total))
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidPromoError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.reason, invalid.Reason)
			assert.ErrorIs(t, err, ErrInvalidPromo)
		})
	}
}

func TestRedeem(t *testing.T) {
	p := &PromoCode{Code: "ONCE", UsageLimit: 1}

	require.NoError(t, p.Redeem())
	assert.Equal(t, 1, p.UsedCount)

	err := p.Redeem()
	assert.ErrorIs(t, err, ErrInvalidPromo)
	assert.Equal(t, 1, p.UsedCount)
}

func TestSubtotal(t *testing.T) {
	got := Subtotal(
		Line{Price: dec("9.99"), Quantity: 3},
		Line{Price: dec("0.01"), Quantity: 1},
	)
	assert.True(t, got.Equal(dec("29.98")), got.String())
}
