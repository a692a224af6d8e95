package payment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/storefront/internal/application"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const ownerID int64 = 7

var owner = application.Actor{UserID: ownerID}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("pay-%d", g.n)
}

type seqRefs struct {
	mu sync.Mutex
	n  int
}

func (g *seqRefs) NewPaymentReference(orderNumber string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ORDER-%s-%04X", orderNumber, g.n)
}

type fakePaynow struct {
	calls     atomic.Int32
	redirect  *PaynowRedirect
	err       error
	authentic bool
}

func (f *fakePaynow) Initiate(ctx context.Context, req PaynowRequest) (*PaynowRedirect, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.redirect != nil {
		return f.redirect, nil
	}
	return &PaynowRedirect{
		BrowserURL:        "https://paynow.example/pay?guid=" + req.Reference,
		PollURL:           "https://paynow.example/poll?guid=" + req.Reference,
		ProviderReference: "PN-" + req.Reference,
	}, nil
}

func (f *fakePaynow) Verify([]Field) bool { return f.authentic }

type fakePayPal struct {
	createCalls  atomic.Int32
	captureCalls atomic.Int32
	createErr    error
	capture      func(ctx context.Context, id string) (*PayPalOrder, error)
}

func (f *fakePayPal) CreateOrder(_ context.Context, req PayPalOrderRequest) (*PayPalOrder, error) {
	f.createCalls.Add(1)
	if f.createErr != nil {
		return nil, f.createErr
	}
	raw := fmt.Sprintf(`{"id":"PP-%s","status":"CREATED"}`, req.ReferenceID)
	return &PayPalOrder{ID: "PP-" + req.ReferenceID, Status: "CREATED", Raw: []byte(raw)}, nil
}

func (f *fakePayPal) CaptureOrder(ctx context.Context, id string) (*PayPalOrder, error) {
	f.captureCalls.Add(1)
	if f.capture != nil {
		return f.capture(ctx, id)
	}
	return &PayPalOrder{ID: id, Status: PayPalStatusCompleted}, nil
}

func seedOrder(t *testing.T, s *memory.Store, userID int64, number string, total string) *domorder.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	o, err := domorder.New(domorder.Draft{
		Number:          number,
		UserID:          userID,
		Items:           []domorder.Item{{VariantID: 1, Quantity: 1, Price: amount}},
		Subtotal:        amount,
		TotalPrice:      amount,
		ShippingAddress: "1 Main St",
		BillingAddress:  "1 Main St",
		PaymentMethod:   "paynow",
	})
	require.NoError(t, err)
	require.NoError(t, s.Transact(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, o)
	}))
	return o
}

func seedPayment(t *testing.T, s *memory.Store, o *domorder.Order, provider dompay.Provider, ref, providerRef string) *dompay.Payment {
	t.Helper()
	p, err := dompay.New("seed-"+ref, o.ID, provider, ref, o.TotalPrice)
	require.NoError(t, err)
	p.ProviderReference = providerRef
	require.NoError(t, s.Transact(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Payments().Insert(ctx, p)
	}))
	return p
}

func orderOf(t *testing.T, s *memory.Store, id int64) *domorder.Order {
	t.Helper()
	o, ok := s.Order(id)
	require.True(t, ok)
	return o
}

func paymentOf(t *testing.T, s *memory.Store, ref string) *dompay.Payment {
	t.Helper()
	p, ok := s.Payment(ref)
	require.True(t, ok)
	return p
}

func eventNames(s *memory.Store) []string {
	var names []string
	for _, m := range s.Messages() {
		names = append(names, m.Name)
	}
	return names
}
