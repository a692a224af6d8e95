package paynow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apppay "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "3e9fed89-60e1-4ce5-ab6e-6b1eb2d4f977"

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		IntegrationID:  "1201",
		IntegrationKey: testKey,
		InitiateURL:    srv.URL + "/interface/initiatetransaction",
		ReturnURL:      "https://shop.example/payments/return/" + ReferencePlaceholder,
		ResultURL:      "https://shop.example/api/payments/paynow/webhook",
	}, srv.Client())
}

func signed(fields ...apppay.Field) string {
	fields = append(fields, apppay.Field{Key: "hash", Value: Hash(fields, testKey)})
	return EncodeFields(fields)
}

func TestInitiateSendsSignedFormAndParsesRedirect(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fields, err := ParseFields(string(body))
		require.NoError(t, err)

		keys := make([]string, len(fields))
		for i, f := range fields {
			keys[i] = f.Key
		}
		assert.Equal(t, []string{"id", "reference", "amount", "additionalinfo", "returnurl", "resulturl", "status", "hash"}, keys)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "25.50", lookup(fields, "amount"))
		assert.Equal(t, "https://shop.example/payments/return/ORDER-ORD1-AB12", lookup(fields, "returnurl"))
		assert.Equal(t, Hash(fields, testKey), lookup(fields, "hash"))

		_, _ = io.WriteString(w, signed(
			apppay.Field{Key: "status", Value: "Ok"},
			apppay.Field{Key: "browserurl", Value: "https://paynow.example/pay?guid=1"},
			apppay.Field{Key: "pollurl", Value: "https://paynow.example/poll?guid=1"},
			apppay.Field{Key: "paynowreference", Value: "987654"},
		))
	})

	got, err := c.Initiate(context.Background(), apppay.PaynowRequest{
		Reference:      "ORDER-ORD1-AB12",
		Amount:         decimal.RequireFromString("25.5"),
		AdditionalInfo: "Payment for Order #ORD1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://paynow.example/pay?guid=1", got.BrowserURL)
	assert.Equal(t, "https://paynow.example/poll?guid=1", got.PollURL)
	assert.Equal(t, "987654", got.ProviderReference)
}

func TestInitiateErrorStatusIsProviderRejection(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "status=Error&error=Invalid+amount+field")
	})

	_, err := c.Initiate(context.Background(), apppay.PaynowRequest{Reference: "R", Amount: decimal.NewFromInt(1)})
	var rejected *apppay.ProviderError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Invalid amount field", rejected.Message)
	assert.ErrorIs(t, err, apppay.ErrProviderRejected)
}

func TestInitiateUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		},
		"unknown status": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "status=Maybe")
		},
		"bad response hash": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "status=Ok&browserurl=x&hash=ABC")
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, h)
			_, err := c.Initiate(context.Background(), apppay.PaynowRequest{Reference: "R", Amount: decimal.NewFromInt(1)})
			require.Error(t, err)
			assert.ErrorIs(t, err, apppay.ErrProviderUnavailable)
			assert.False(t, errors.Is(err, apppay.ErrProviderRejected))
		})
	}
}

func TestInitiateHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Initiate(ctx, apppay.PaynowRequest{Reference: "R", Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, apppay.ErrProviderUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerify(t *testing.T) {
	c := New(Config{IntegrationKey: testKey}, nil)
	fields := []apppay.Field{
		{Key: "reference", Value: "ORDER-ORD1-AB12"},
		{Key: "paynowreference", Value: "987654"},
		{Key: "amount", Value: "25.50"},
		{Key: "status", Value: "Paid"},
		{Key: "pollurl", Value: "https://paynow.example/poll?guid=1"},
	}
	good := append(append([]apppay.Field(nil), fields...), apppay.Field{Key: "hash", Value: Hash(fields, testKey)})

	assert.True(t, c.Verify(good))

	lower := append([]apppay.Field(nil), good...)
	lower[len(lower)-1].Value = strings.ToLower(lower[len(lower)-1].Value)
	assert.True(t, c.Verify(lower), "hash comparison ignores case")

	tampered := append([]apppay.Field(nil), good...)
	tampered[3].Value = "Cancelled"
	assert.False(t, c.Verify(tampered))

	reordered := append([]apppay.Field{good[1], good[0]}, good[2:]...)
	assert.False(t, c.Verify(reordered), "values are hashed in wire order")

	assert.False(t, c.Verify(fields), "missing hash")
	assert.False(t, New(Config{IntegrationKey: "other"}, nil).Verify(good))
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields("reference=ORDER-1&status=Awaiting+Delivery&pollurl=https%3A%2F%2Fx%2Fpoll%3Fa%3D1&empty=")
	require.NoError(t, err)
	assert.Equal(t, []apppay.Field{
		{Key: "reference", Value: "ORDER-1"},
		{Key: "status", Value: "Awaiting Delivery"},
		{Key: "pollurl", Value: "https://x/poll?a=1"},
		{Key: "empty", Value: ""},
	}, fields)

	for _, body := range []string{"", "novalue", "a=1&&b=2", "=x", "a=%zz"} {
		_, err := ParseFields(body)
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}
