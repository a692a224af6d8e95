package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New(Draft{
		Number:     "ORD-ABCDEFGHIJ",
		UserID:     7,
		Items:      []Item{{VariantID: 1, Quantity: 2, Price: decimal.RequireFromString("5.00")}},
		Subtotal:   decimal.RequireFromString("10.00"),
		TotalPrice: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	return o
}

func TestNewValidatesDraft(t *testing.T) {
	_, err := New(Draft{})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = New(Draft{Items: []Item{{VariantID: 1, Quantity: 0}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New(Draft{
		Items:      []Item{{VariantID: 1, Quantity: 1}},
		TotalPrice: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	o := newTestOrder(t)
	assert.Equal(t, StatusPending, o.Status)
	assert.False(t, o.PaymentStatus)
	assert.True(t, o.Items[0].LineTotal().Equal(decimal.RequireFromString("10")))
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	o := newTestOrder(t)

	changed, err := o.MarkPaid()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, o.PaymentStatus)

	changed, err = o.MarkPaid()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestMarkPaidFromOnHold(t *testing.T) {
	o := newTestOrder(t)
	_, err := o.Advance(StatusOnHold, "")
	require.NoError(t, err)

	_, err = o.MarkPaid()
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestPaymentCancelledNeverDowngradesPaidOrder(t *testing.T) {
	o := newTestOrder(t)
	_, err := o.MarkPaid()
	require.NoError(t, err)

	changed, err := o.MarkPaymentCancelled()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, o.PaymentStatus)
}

func TestPaymentCancelledCancelsUnpaidOrder(t *testing.T) {
	o := newTestOrder(t)

	changed, err := o.MarkPaymentCancelled()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCancelled, o.Status)

	changed, err = o.MarkPaymentCancelled()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFulfillmentTransitions(t *testing.T) {
	o := newTestOrder(t)

	_, err := o.Advance(StatusShipped, "TRK1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = o.MarkPaid()
	require.NoError(t, err)

	changed, err := o.Advance(StatusShipped, "TRK1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "TRK1", o.TrackingNumber)

	changed, err = o.Advance(StatusShipped, "")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = o.Advance(StatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	changed, err = o.Advance(StatusDelivered, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusDelivered, o.Status)

	_, err = o.Advance(StatusProcessing, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCloneIsDeep(t *testing.T) {
	id := int64(3)
	o := newTestOrder(t)
	o.PromoCodeID = &id

	c := o.Clone()
	c.Items[0].Quantity = 99
	*c.PromoCodeID = 4

	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, int64(3), *o.PromoCodeID)
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("shipped")
	assert.True(t, ok)
	assert.Equal(t, StatusShipped, st)

	_, ok = ParseStatus("P")
	assert.False(t, ok)
}
