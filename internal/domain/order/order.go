package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrEmptyCart              = errors.New("order: cart is empty")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amount must be zero or greater")
	ErrAlreadyPaid            = errors.New("order: already paid")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on_hold"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusOnHold, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Item is a line of an order. Price is the unit price at purchase time and is never recomputed.
type Item struct {
	ID        int64
	OrderID   int64
	VariantID int64
	Quantity  int
	Price     decimal.Decimal
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              int64
	Number          string
	UserID          int64
	Status          Status
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalPrice      decimal.Decimal
	PaymentStatus   bool
	PromoCodeID     *int64
	ShippingAddress string
	BillingAddress  string
	PaymentMethod   string
	TrackingNumber  string
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft carries everything needed to materialize a new order.
type Draft struct {
	Number          string
	UserID          int64
	Items           []Item
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalPrice      decimal.Decimal
	PromoCodeID     *int64
	ShippingAddress string
	BillingAddress  string
	PaymentMethod   string
}

// New builds a pending, unpaid order.
func New(d Draft) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.Price.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	if d.TotalPrice.IsNegative() || d.DiscountAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	items := make([]Item, len(d.Items))
	copy(items, d.Items)
	return &Order{
		Number:          d.Number,
		UserID:          d.UserID,
		Status:          StatusPending,
		Subtotal:        d.Subtotal,
		DiscountAmount:  d.DiscountAmount,
		TotalPrice:      d.TotalPrice,
		PromoCodeID:     d.PromoCodeID,
		ShippingAddress: d.ShippingAddress,
		BillingAddress:  d.BillingAddress,
		PaymentMethod:   d.PaymentMethod,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o *Order) OwnedBy(userID int64) bool { return o.UserID == userID }

// MarkPaid records a captured payment. It reports whether anything changed.
func (o *Order) MarkPaid() (bool, error) {
	wasPaid, prev := o.PaymentStatus, o.Status
	next, err := stateOf(o.Status).OnPaymentPaid(o)
	if err != nil {
		return false, err
	}
	o.PaymentStatus = true
	o.Status = next.Status()
	changed := !wasPaid || prev != o.Status
	if changed {
		o.touch()
	}
	return changed, nil
}

// MarkPaymentCancelled cancels an unpaid order. Paid orders are left untouched.
func (o *Order) MarkPaymentCancelled() (bool, error) {
	if o.PaymentStatus {
		return false, nil
	}
	prev := o.Status
	next, err := stateOf(o.Status).OnPaymentCancelled(o)
	if err != nil {
		return false, err
	}
	o.Status = next.Status()
	if prev != o.Status {
		o.touch()
		return true, nil
	}
	return false, nil
}

// Advance applies a fulfillment transition. Re-applying the current status is a no-op.
func (o *Order) Advance(target Status, trackingNumber string) (bool, error) {
	if target == o.Status {
		if trackingNumber != "" && trackingNumber != o.TrackingNumber {
			o.TrackingNumber = trackingNumber
			o.touch()
			return true, nil
		}
		return false, nil
	}

	st := stateOf(o.Status)
	var (
		next orderState
		err  error
	)
	switch target {
	case StatusOnHold:
		next, err = st.Hold(o)
	case StatusShipped:
		next, err = st.Ship(o)
	case StatusDelivered:
		next, err = st.Deliver(o)
	case StatusCancelled:
		next, err = st.Cancel(o)
	default:
		err = ErrInvalidStateTransition
	}
	if err != nil {
		return false, err
	}
	o.Status = next.Status()
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	o.touch()
	return true, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Items != nil {
		clone.Items = make([]Item, len(o.Items))
		copy(clone.Items, o.Items)
	}
	if o.PromoCodeID != nil {
		id := *o.PromoCodeID
		clone.PromoCodeID = &id
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
