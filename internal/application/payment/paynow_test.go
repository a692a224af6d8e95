package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPaynowStatus(t *testing.T) {
	cases := []struct {
		in      string
		outcome dompay.Status
		final   bool
	}{
		{"Paid", dompay.StatusPaid, true},
		{"Awaiting Delivery", dompay.StatusPaid, true},
		{"delivered", dompay.StatusPaid, true},
		{"Cancelled", dompay.StatusCancelled, true},
		{"Created", "", false},
		{"Sent", "", false},
		{"Failed", dompay.StatusFailed, true},
		{"Disputed", dompay.StatusFailed, true},
		{"", dompay.StatusFailed, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			outcome, final := MapPaynowStatus(tc.in)
			assert.Equal(t, tc.outcome, outcome)
			assert.Equal(t, tc.final, final)
		})
	}
}

func newPaynowService(s *memory.Store, gw *fakePaynow) *Service {
	return NewService(Dependencies{
		UnitOfWork: s,
		Paynow:     gw,
		PayPal:     &fakePayPal{},
		IDs:        &seqIDs{},
		References: &seqRefs{},
	}, Config{})
}

func TestInitiatePaynowSuccess(t *testing.T) {
	s := memory.NewStore()
	o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
	gw := &fakePaynow{}
	svc := newPaynowService(s, gw)

	res, err := svc.InitiatePaynow(context.Background(), InitiatePaynowInput{Actor: owner, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-ORD-0000000001-0001", res.Reference)
	assert.Equal(t, "https://paynow.example/pay?guid="+res.Reference, res.RedirectURL)

	p := paymentOf(t, s, res.Reference)
	assert.Equal(t, dompay.StatusPending, p.Status)
	assert.Equal(t, dompay.ProviderPaynow, p.Provider)
	assert.Equal(t, "PN-"+res.Reference, p.ProviderReference)
	assert.Equal(t, "25.00", p.Amount.StringFixed(2))
}

func TestInitiatePaynowRefusals(t *testing.T) {
	s := memory.NewStore()
	o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
	gw := &fakePaynow{}
	svc := newPaynowService(s, gw)
	ctx := context.Background()

	_, err := svc.InitiatePaynow(ctx, InitiatePaynowInput{Actor: application.Actor{UserID: 99}, OrderID: o.ID})
	assert.ErrorIs(t, err, domorder.ErrNotFound)

	_, err = svc.InitiatePaynow(ctx, InitiatePaynowInput{Actor: owner, OrderID: 404})
	assert.ErrorIs(t, err, domorder.ErrNotFound)

	_, err = svc.InitiatePaynow(ctx, InitiatePaynowInput{Actor: owner})
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.Reconcile(ctx, ReconcileInput{Provider: dompay.ProviderPaynow, Reference: paidVia(t, s, o), Outcome: dompay.StatusPaid})
	require.NoError(t, err)

	_, err = svc.InitiatePaynow(ctx, InitiatePaynowInput{Actor: owner, OrderID: o.ID})
	assert.ErrorIs(t, err, domorder.ErrAlreadyPaid)
	assert.Zero(t, gw.calls.Load())
}

func paidVia(t *testing.T, s *memory.Store, o *domorder.Order) string {
	t.Helper()
	ref := fmt.Sprintf("SEED-%d", o.ID)
	seedPayment(t, s, o, dompay.ProviderPaynow, ref, "")
	return ref
}

func TestInitiatePaynowProviderRejectionFailsPayment(t *testing.T) {
	s := memory.NewStore()
	o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
	gw := &fakePaynow{err: &ProviderError{Provider: dompay.ProviderPaynow, Message: "Invalid amount field"}}
	svc := newPaynowService(s, gw)

	_, err := svc.InitiatePaynow(context.Background(), InitiatePaynowInput{Actor: owner, OrderID: o.ID})
	var rejected *ProviderError
	require.True(t, errors.As(err, &rejected))
	assert.ErrorIs(t, err, ErrProviderRejected)

	p := paymentOf(t, s, "ORDER-ORD-0000000001-0001")
	assert.Equal(t, dompay.StatusFailed, p.Status)
	assert.Equal(t, "Invalid amount field", p.FailureReason)
	assert.Equal(t, domorder.StatusPending, orderOf(t, s, o.ID).Status)
}

func TestInitiatePaynowUnavailableLeavesPaymentPending(t *testing.T) {
	s := memory.NewStore()
	o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
	gw := &fakePaynow{err: errors.New("dial tcp: connection refused")}
	svc := newPaynowService(s, gw)

	_, err := svc.InitiatePaynow(context.Background(), InitiatePaynowInput{Actor: owner, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, dompay.StatusPending, paymentOf(t, s, "ORDER-ORD-0000000001-0001").Status)
}

func webhookFields(ref, status string) []Field {
	return []Field{
		{Key: "reference", Value: ref},
		{Key: "paynowreference", Value: "PN-77"},
		{Key: "amount", Value: "25.00"},
		{Key: "status", Value: status},
		{Key: "hash", Value: "ABC"},
	}
}

func TestPaynowWebhook(t *testing.T) {
	t.Run("authentic paid", func(t *testing.T) {
		s := memory.NewStore()
		o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
		seedPayment(t, s, o, dompay.ProviderPaynow, "REF-1", "")
		svc := newPaynowService(s, &fakePaynow{authentic: true})

		res, err := svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("REF-1", "Paid")})
		require.NoError(t, err)
		assert.True(t, res.Authentic)
		assert.True(t, res.Applied)
		assert.Equal(t, dompay.StatusPaid, res.Status)
		assert.Equal(t, domorder.StatusProcessing, orderOf(t, s, o.ID).Status)
		assert.Equal(t, "PN-77", paymentOf(t, s, "REF-1").ProviderReference)

		res, err = svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("REF-1", "Paid")})
		require.NoError(t, err)
		assert.False(t, res.Applied)
	})

	t.Run("hash mismatch", func(t *testing.T) {
		s := memory.NewStore()
		o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
		seedPayment(t, s, o, dompay.ProviderPaynow, "REF-1", "")
		svc := newPaynowService(s, &fakePaynow{authentic: false})

		res, err := svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("REF-1", "Paid")})
		require.NoError(t, err)
		assert.False(t, res.Authentic)
		assert.Equal(t, dompay.StatusFailed, res.Status)
		assert.Equal(t, ReasonAuthenticity, paymentOf(t, s, "REF-1").FailureReason)
		got := orderOf(t, s, o.ID)
		assert.False(t, got.PaymentStatus)
		assert.Equal(t, domorder.StatusPending, got.Status)
	})

	t.Run("intermediate status is acknowledged", func(t *testing.T) {
		s := memory.NewStore()
		o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
		seedPayment(t, s, o, dompay.ProviderPaynow, "REF-1", "")
		svc := newPaynowService(s, &fakePaynow{authentic: true})

		res, err := svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("REF-1", "Sent")})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, dompay.StatusPending, res.Status)
		assert.Empty(t, s.Messages())

		_, err = svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("MISSING", "Created")})
		assert.ErrorIs(t, err, dompay.ErrNotFound)
	})

	t.Run("unknown reference", func(t *testing.T) {
		svc := newPaynowService(memory.NewStore(), &fakePaynow{authentic: true})
		_, err := svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: webhookFields("MISSING", "Paid")})
		assert.ErrorIs(t, err, dompay.ErrNotFound)
	})

	t.Run("malformed", func(t *testing.T) {
		svc := newPaynowService(memory.NewStore(), &fakePaynow{authentic: true})
		_, err := svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: []Field{{Key: "status", Value: "Paid"}}})
		assert.ErrorIs(t, err, application.ErrValidation)

		_, err = svc.PaynowWebhook(context.Background(), PaynowWebhookInput{Fields: []Field{{Key: "reference", Value: "REF-1"}}})
		assert.ErrorIs(t, err, application.ErrValidation)
	})
}

func TestPaymentStatus(t *testing.T) {
	s := memory.NewStore()
	o := seedOrder(t, s, ownerID, "ORD-0000000001", "25.00")
	seedPayment(t, s, o, dompay.ProviderPaynow, "REF-1", "")
	svc := newPaynowService(s, &fakePaynow{})

	p, err := svc.Status(context.Background(), StatusInput{Reference: "REF-1"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusPending, p.Status)

	_, err = svc.Status(context.Background(), StatusInput{Reference: "NOPE"})
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}
