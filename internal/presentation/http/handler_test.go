package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	domainInventory "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domainPayment "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/paynow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodHash = "GOOD"

type stubPaynow struct {
	err error
}

func (s *stubPaynow) Initiate(_ context.Context, req appPayment.PaynowRequest) (*appPayment.PaynowRedirect, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appPayment.PaynowRedirect{
		BrowserURL:        "https://paynow.example/pay?ref=" + req.Reference,
		PollURL:           "https://paynow.example/poll?ref=" + req.Reference,
		ProviderReference: "PN-1",
	}, nil
}

func (s *stubPaynow) Verify(fields []appPayment.Field) bool {
	for _, f := range fields {
		if f.Key == "hash" {
			return f.Value == goodHash
		}
	}
	return false
}

type stubPayPal struct {
	seq           atomic.Int32
	captureStatus string
}

func (s *stubPayPal) CreateOrder(_ context.Context, req appPayment.PayPalOrderRequest) (*appPayment.PayPalOrder, error) {
	n := s.seq.Add(1)
	oid := fmt.Sprintf("PP-%d", n)
	raw := fmt.Sprintf(`{"id":%q,"status":"CREATED","purchase_units":[{"reference_id":%q}]}`, oid, req.ReferenceID)
	return &appPayment.PayPalOrder{ID: oid, Status: "CREATED", Raw: json.RawMessage(raw)}, nil
}

func (s *stubPayPal) CaptureOrder(_ context.Context, paypalOrderID string) (*appPayment.PayPalOrder, error) {
	status := s.captureStatus
	if status == "" {
		status = appPayment.PayPalStatusCompleted
	}
	return &appPayment.PayPalOrder{ID: paypalOrderID, Status: status}, nil
}

type testServer struct {
	store  *memory.Store
	paynow *stubPaynow
	paypal *stubPayPal
	health error
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := memory.NewStore()
	s.AddVariant(&domainInventory.Variant{ID: 1, SKU: "TEE-S", Price: decimal.RequireFromString("10.00"), Stock: 5})
	s.AddVariant(&domainInventory.Variant{ID: 2, SKU: "MUG", Price: decimal.RequireFromString("15.00"), Stock: 1})
	s.AddPromo(&pricing.PromoCode{
		ID:           1,
		Code:         "SAVE10",
		DiscountType: pricing.DiscountPercent,
		Value:        decimal.NewFromInt(10),
		Active:       true,
		ValidFrom:    time.Now().Add(-time.Hour),
	})

	ts := &testServer{store: s, paynow: &stubPaynow{}, paypal: &stubPayPal{}}
	orders := appOrder.NewService(s, id.NewOrderNumbers(), nil, nil)
	payments := appPayment.NewService(appPayment.Dependencies{
		UnitOfWork: s,
		Paynow:     ts.paynow,
		PayPal:     ts.paypal,
		IDs:        id.NewUUIDGenerator(),
		References: id.NewPaymentReferences(),
	}, appPayment.Config{})
	h := NewHandler(Dependencies{
		Orders:    orders,
		Payments:  payments,
		ParseForm: paynow.ParseFields,
		Health:    func(context.Context) error { return ts.health },
	})
	ts.router = h.Router()
	return ts
}

type call struct {
	method string
	path   string
	body   string
	form   bool
	user   int64
	staff  bool
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user > 0 {
		req.Header.Set(headerUserID, fmt.Sprint(c.user))
	}
	if c.staff {
		req.Header.Set(headerUserStaff, "true")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const validCart = `{"items":[{"variant_id":1,"quantity":2},{"variant_id":2,"quantity":1}],
	"shipping_address":"1 Main St","billing_address":"1 Main St","payment_method":"paynow","promo_code":"save10"}`

func (ts *testServer) placeOrder(t *testing.T, user int64) int64 {
	t.Helper()
	rec := ts.do(t, call{method: http.MethodPost, path: "/orders", body: validCart, user: user})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decodeBody(t, rec)["id"].(float64))
}

func TestPlaceOrderCreatesOrder(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/orders", body: validCart, user: 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	body := decodeBody(t, rec)
	assert.Equal(t, "35.00", body["subtotal"])
	assert.Equal(t, "3.50", body["discount_amount"])
	assert.Equal(t, "31.50", body["total_price"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, false, body["payment_status"])
	assert.Regexp(t, `^ORD-[A-Z0-9]{10}$`, body["order_number"])
	assert.Len(t, body["items"], 2)

	v, _ := ts.store.Variant(1)
	assert.Equal(t, 3, v.Stock)
	promo, _ := ts.store.Promo("SAVE10")
	assert.Equal(t, 1, promo.UsedCount)
}

func TestPlaceOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		user   int64
		status int
		code   string
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "unauthenticated",
			body:   validCart,
			status: http.StatusUnauthorized,
			code:   "UNAUTHENTICATED",
		},
		{
			name:   "empty cart",
			body:   `{"items":[],"shipping_address":"a","billing_address":"b","payment_method":"paynow"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "EMPTY_CART",
		},
		{
			name:   "insufficient stock",
			body:   `{"items":[{"variant_id":2,"quantity":3}],"shipping_address":"a","billing_address":"b","payment_method":"paynow"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "INSUFFICIENT_STOCK",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(2), body["variant_id"])
				assert.Equal(t, float64(1), body["available"])
				assert.Equal(t, float64(3), body["requested"])
			},
		},
		{
			name:   "unknown variant",
			body:   `{"items":[{"variant_id":99,"quantity":1}],"shipping_address":"a","billing_address":"b","payment_method":"paynow"}`,
			user:   7,
			status: http.StatusNotFound,
			code:   "VARIANT_NOT_FOUND",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(99), body["variant_id"])
			},
		},
		{
			name:   "unknown promo",
			body:   `{"items":[{"variant_id":1,"quantity":1}],"shipping_address":"a","billing_address":"b","payment_method":"paynow","promo_code":"NOPE"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "INVALID_PROMO",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, pricing.ReasonNotFound, body["reason"])
			},
		},
		{
			name:   "missing address",
			body:   `{"items":[{"variant_id":1,"quantity":1}],"billing_address":"b","payment_method":"paynow"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "shipping_address", body["field"])
			},
		},
		{
			name:   "client line price",
			body:   `{"items":[{"variant_id":1,"quantity":1,"price":"0.01"}],"shipping_address":"a","billing_address":"b","payment_method":"paynow"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "client total price",
			body:   `{"items":[{"variant_id":1,"quantity":1}],"shipping_address":"a","billing_address":"b","payment_method":"paynow","total_price":"0.01"}`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "broken json",
			body:   `{"items":`,
			user:   7,
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, call{method: http.MethodPost, path: "/orders", body: tt.body, user: tt.user})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.code, body["code"])
			if tt.check != nil {
				tt.check(t, body)
			}
			assert.Zero(t, ts.store.OrderCount())
			v, _ := ts.store.Variant(2)
			assert.Equal(t, 1, v.Stock)
		})
	}
}

func TestOrderVisibility(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	path := fmt.Sprintf("/orders/%d", orderID)

	rec := ts.do(t, call{method: http.MethodGet, path: path, user: 7})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: path, user: 8})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: path, user: 8, staff: true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/orders/abc", user: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/orders/mine", user: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, float64(orderID), mine[0]["id"])

	rec = ts.do(t, call{method: http.MethodGet, path: "/orders/mine", user: 8})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateStatusRequiresStaff(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	path := fmt.Sprintf("/orders/%d/status", orderID)

	rec := ts.do(t, call{method: http.MethodPost, path: path, body: `{"status":"on_hold"}`, user: 7})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, call{method: http.MethodPost, path: path, body: `{"status":"on_hold"}`, user: 1, staff: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["changed"])

	rec = ts.do(t, call{method: http.MethodPost, path: path, body: `{"status":"delivered"}`, user: 1, staff: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeBody(t, rec)["code"])
}

func TestValidatePromo(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/validate-promo", body: `{"code":"save10","cart_total":"50.00"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "SAVE10", body["code"])
	assert.Equal(t, "5.00", body["discount_amount"])
	assert.Equal(t, "45.00", body["total"])

	rec = ts.do(t, call{method: http.MethodPost, path: "/validate-promo", body: `{"code":"GONE","cart_total":50}`})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PROMO", decodeBody(t, rec)["code"])

	promo, _ := ts.store.Promo("SAVE10")
	assert.Zero(t, promo.UsedCount)
}

func (ts *testServer) initiate(t *testing.T, orderID int64) string {
	t.Helper()
	rec := ts.do(t, call{
		method: http.MethodPost,
		path:   "/payments/initiate",
		body:   fmt.Sprintf(`{"order_id":%d}`, orderID),
		user:   7,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Contains(t, body["redirect_url"], "https://paynow.example/pay")
	return body["reference"].(string)
}

func statusUpdate(reference, status, hash string) string {
	return "reference=" + reference + "&paynowreference=PN-1&amount=31.50&status=" + status +
		"&pollurl=https%3A%2F%2Fpaynow.example%2Fpoll&hash=" + hash
}

func TestPaynowFlow(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	ref := ts.initiate(t, orderID)

	rec := ts.do(t, call{method: http.MethodGet, path: "/payments/status/" + ref})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decodeBody(t, rec)["status"])

	for i := 0; i < 2; i++ {
		rec = ts.do(t, call{method: http.MethodPost, path: "/payments/update", body: statusUpdate(ref, "Paid", goodHash), form: true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "paid", decodeBody(t, rec)["status"])
	}

	p, ok := ts.store.Payment(ref)
	require.True(t, ok)
	assert.Equal(t, domainPayment.StatusPaid, p.Status)

	rec = ts.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/orders/%d", orderID), user: 7})
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["payment_status"])
	assert.Equal(t, "processing", body["status"])

	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: fmt.Sprintf(`{"order_id":%d}`, orderID), user: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_PAID", decodeBody(t, rec)["code"])
}

func TestPaynowForgedUpdate(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	ref := ts.initiate(t, orderID)

	rec := ts.do(t, call{method: http.MethodPost, path: "/payments/update", body: statusUpdate(ref, "Paid", "FORGED"), form: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", decodeBody(t, rec)["status"])

	rec = ts.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/orders/%d", orderID), user: 7})
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["payment_status"])
	assert.Equal(t, "pending", body["status"])
}

func TestPaynowUpdateRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodPost, path: "/payments/update", body: "", form: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MALFORMED_FORM", decodeBody(t, rec)["code"])

	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/update", body: statusUpdate("ORDER-UNKNOWN-0000", "Paid", goodHash), form: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/payments/status/NOPE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PAYMENT_NOT_FOUND", decodeBody(t, rec)["code"])
}

func TestPaynowProviderFailures(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	body := fmt.Sprintf(`{"order_id":%d}`, orderID)

	ts.paynow.err = errors.New("dial tcp: connection refused")
	rec := ts.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: body, user: 7})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PROVIDER_UNAVAILABLE", decodeBody(t, rec)["code"])

	ts.paynow.err = &appPayment.ProviderError{Provider: domainPayment.ProviderPaynow, Message: "Invalid amount field"}
	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: body, user: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "PROVIDER_REJECTED", got["code"])
	assert.Equal(t, "Invalid amount field", got["error"])
}

func TestPayPalFlow(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)

	rec := ts.do(t, call{method: http.MethodPost, path: "/payments/paypal/create", body: fmt.Sprintf(`{"order_id":%d}`, orderID), user: 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "CREATED", created["status"])
	assert.NotEmpty(t, created["purchase_units"])
	ppID := created["id"].(string)

	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/update", body: statusUpdate("PAYPAL-"+ppID, "Paid", "FORGED"), form: true})
	assert.Equal(t, http.StatusNotFound, rec.Code, "paynow updates cannot address paypal payments")

	capture := fmt.Sprintf(`{"paypal_order_id":%q,"user_order_id":%d}`, ppID, orderID)
	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/paypal/capture", body: capture, user: 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody(t, rec)
	assert.Equal(t, "paid", got["status"])
	assert.Equal(t, "PAYPAL-"+ppID, got["reference"])

	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/paypal/capture", body: capture, user: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_PAID", decodeBody(t, rec)["code"])
}

func TestPayPalCaptureIncomplete(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.placeOrder(t, 7)
	ts.paypal.captureStatus = "PENDING"

	capture := fmt.Sprintf(`{"paypal_order_id":"PP-9","user_order_id":%d}`, orderID)
	rec := ts.do(t, call{method: http.MethodPost, path: "/payments/paypal/capture", body: capture, user: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CAPTURE_INCOMPLETE", decodeBody(t, rec)["code"])

	rec = ts.do(t, call{method: http.MethodPost, path: "/payments/paypal/capture", body: capture, user: 8})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.health = errors.New("db down")
	rec = ts.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, call{method: http.MethodPost, path: "/health"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
