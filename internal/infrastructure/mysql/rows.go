package mysql

import (
	"database/sql"
	"time"

	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"

	"github.com/shopspring/decimal"
)

type variantRow struct {
	ID            int64               `db:"id"`
	ProductName   string              `db:"product_name"`
	SKU           string              `db:"sku"`
	Price         decimal.Decimal     `db:"price"`
	DiscountPrice decimal.NullDecimal `db:"discount_price"`
	Stock         int                 `db:"stock"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

func (r variantRow) domain() *dominv.Variant {
	return &dominv.Variant{
		ID:            r.ID,
		ProductName:   r.ProductName,
		SKU:           r.SKU,
		Price:         r.Price,
		DiscountPrice: r.DiscountPrice,
		Stock:         r.Stock,
		UpdatedAt:     r.UpdatedAt,
	}
}

type promoRow struct {
	ID           int64           `db:"id"`
	Code         string          `db:"code"`
	DiscountType string          `db:"discount_type"`
	Value        decimal.Decimal `db:"value"`
	Active       bool            `db:"active"`
	ValidFrom    time.Time       `db:"valid_from"`
	ValidTo      sql.NullTime    `db:"valid_to"`
	UsageLimit   int             `db:"usage_limit"`
	UsedCount    int             `db:"used_count"`
	MinPurchase  decimal.Decimal `db:"min_purchase_amount"`
}

func (r promoRow) domain() *pricing.PromoCode {
	p := &pricing.PromoCode{
		ID:           r.ID,
		Code:         r.Code,
		DiscountType: pricing.DiscountType(r.DiscountType),
		Value:        r.Value,
		Active:       r.Active,
		ValidFrom:    r.ValidFrom,
		UsageLimit:   r.UsageLimit,
		UsedCount:    r.UsedCount,
		MinPurchase:  r.MinPurchase,
	}
	if r.ValidTo.Valid {
		to := r.ValidTo.Time
		p.ValidTo = &to
	}
	return p
}

type orderRow struct {
	ID              int64           `db:"id"`
	Number          string          `db:"order_number"`
	UserID          int64           `db:"user_id"`
	Status          string          `db:"status"`
	Subtotal        decimal.Decimal `db:"subtotal"`
	DiscountAmount  decimal.Decimal `db:"discount_amount"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	PaymentStatus   bool            `db:"payment_status"`
	PromoCodeID     sql.NullInt64   `db:"promo_code_id"`
	ShippingAddress string          `db:"shipping_address"`
	BillingAddress  string          `db:"billing_address"`
	PaymentMethod   string          `db:"payment_method"`
	TrackingNumber  string          `db:"tracking_number"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func newOrderRow(o *domorder.Order) orderRow {
	r := orderRow{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		TotalPrice:      o.TotalPrice,
		PaymentStatus:   o.PaymentStatus,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.PromoCodeID != nil {
		r.PromoCodeID = sql.NullInt64{Int64: *o.PromoCodeID, Valid: true}
	}
	return r
}

func (r orderRow) domain(items []domorder.Item) *domorder.Order {
	o := &domorder.Order{
		ID:              r.ID,
		Number:          r.Number,
		UserID:          r.UserID,
		Status:          domorder.Status(r.Status),
		Subtotal:        r.Subtotal,
		DiscountAmount:  r.DiscountAmount,
		TotalPrice:      r.TotalPrice,
		PaymentStatus:   r.PaymentStatus,
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
		PaymentMethod:   r.PaymentMethod,
		TrackingNumber:  r.TrackingNumber,
		Items:           items,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.PromoCodeID.Valid {
		id := r.PromoCodeID.Int64
		o.PromoCodeID = &id
	}
	return o
}

type itemRow struct {
	ID        int64           `db:"id"`
	OrderID   int64           `db:"order_id"`
	VariantID int64           `db:"variant_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

func (r itemRow) domain() domorder.Item {
	return domorder.Item{ID: r.ID, OrderID: r.OrderID, VariantID: r.VariantID, Quantity: r.Quantity, Price: r.Price}
}

type paymentRow struct {
	ID                string          `db:"id"`
	OrderID           int64           `db:"order_id"`
	Provider          string          `db:"provider"`
	Reference         string          `db:"reference"`
	ProviderReference string          `db:"provider_reference"`
	Amount            decimal.Decimal `db:"amount"`
	Status            string          `db:"status"`
	FailureReason     string          `db:"failure_reason"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func newPaymentRow(p *dompay.Payment) paymentRow {
	return paymentRow{
		ID:                p.ID,
		OrderID:           p.OrderID,
		Provider:          string(p.Provider),
		Reference:         p.Reference,
		ProviderReference: p.ProviderReference,
		Amount:            p.Amount,
		Status:            string(p.Status),
		FailureReason:     p.FailureReason,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (r paymentRow) domain() *dompay.Payment {
	return &dompay.Payment{
		ID:                r.ID,
		OrderID:           r.OrderID,
		Provider:          dompay.Provider(r.Provider),
		Reference:         r.Reference,
		ProviderReference: r.ProviderReference,
		Amount:            r.Amount,
		Status:            dompay.Status(r.Status),
		FailureReason:     r.FailureReason,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type outboxRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"event_name"`
	Payload   []byte    `db:"payload"`
	Status    int       `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (r outboxRow) domain() domoutbox.Message {
	return domoutbox.Message{
		ID:        r.ID,
		Name:      r.Name,
		Payload:   r.Payload,
		Status:    domoutbox.Status(r.Status),
		CreatedAt: r.CreatedAt,
	}
}
